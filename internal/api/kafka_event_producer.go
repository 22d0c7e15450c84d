package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/services"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// KafkaEventProducer публикует события склада в Kafka
type KafkaEventProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventProducer создает producer событий склада
func NewKafkaEventProducer(brokers, topic, username, password, caCert string) *KafkaEventProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(ParseKafkaBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // События одного отеля попадают в одну партицию
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Transport:    kafkaTransport(username, password, caCert),
	}
	config.GetLogger().WithField("topic", topic).Info("Kafka producer событий склада создан")
	return &KafkaEventProducer{writer: writer, topic: topic}
}

// Publish кодирует событие в protobuf Struct и отправляет с ключом hotel_id
func (p *KafkaEventProducer) Publish(ctx context.Context, event services.StockEvent) error {
	value, err := EncodeStockEvent(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.HotelID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "content-type", Value: []byte("application/x-protobuf")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka %s: %w", p.topic, err)
	}
	return nil
}

// Close закрывает writer
func (p *KafkaEventProducer) Close() error {
	return p.writer.Close()
}

// EncodeStockEvent сериализует событие в google.protobuf.Struct.
// Decimal-поля payload приходят строками через JSON-представление
func EncodeStockEvent(event services.StockEvent) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("кодирование события: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("кодирование события: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("кодирование события: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeStockEvent обратное преобразование для потребителей топика
func DecodeStockEvent(data []byte) (services.StockEvent, error) {
	var event services.StockEvent
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return event, fmt.Errorf("декодирование события: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return event, fmt.Errorf("декодирование события: %w", err)
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return event, fmt.Errorf("декодирование события: %w", err)
	}
	return event, nil
}
