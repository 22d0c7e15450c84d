package api

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"hotelstock/server/internal/config"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// CreateKafkaDialer создает dialer для Kafka с SASL/PLAIN и TLS
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	logger := config.GetLogger()
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if username != "" && password != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: username, Password: password}
		logger.WithField("username", username).Info("Kafka: SASL/PLAIN аутентификация включена")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCert)) {
			tlsConfig.RootCAs = pool
			logger.Info("Kafka: TLS с CA сертификатом включен")
		} else {
			logger.Warn("Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}

	// SASL без TLS брокер не примет
	if dialer.SASLMechanism != nil || caCert != "" {
		dialer.TLS = tlsConfig
	}
	return dialer
}

// kafkaTransport транспорт writer'а с теми же настройками аутентификации
func kafkaTransport(username, password, caCert string) *kafka.Transport {
	dialer := CreateKafkaDialer(username, password, caCert)
	return &kafka.Transport{
		DialTimeout: dialer.Timeout,
		SASL:        dialer.SASLMechanism,
		TLS:         dialer.TLS,
	}
}

// ParseKafkaBrokers парсит список брокеров через запятую
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
