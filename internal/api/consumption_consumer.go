package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const consumptionGroupID = "hotelstock-consumption-v1"

// errUndecodable сообщение не разобрать ни как protobuf, ни как JSON: повтор не поможет
var errUndecodable = errors.New("сообщение расхода не разобрано")

// messageReader часть kafka.Reader, которой пользуется consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumptionMessage сообщение о расходе ингредиента коктейля
type ConsumptionMessage struct {
	HotelID         string          `json:"hotel_id"`
	ItemID          string          `json:"item_id"`
	SKU             string          `json:"sku"`
	Source          string          `json:"source"`
	SourceReference string          `json:"source_reference"`
	Description     string          `json:"description"`
	QuantityUsed    decimal.Decimal `json:"quantity_used"`
	ProducedAt      time.Time       `json:"produced_at"`
}

// ConsumptionIngester принимает записи расхода
type ConsumptionIngester interface {
	Ingest(ctx context.Context, record *models.ExternalConsumptionRecord) (bool, error)
}

// ItemResolver находит позицию склада по артикулу
type ItemResolver interface {
	FindBySKU(ctx context.Context, hotelID, sku string) (*models.StockItem, error)
}

// ConsumptionConsumer читает расход коктейлей из Kafka и сохраняет его для слияния
type ConsumptionConsumer struct {
	topic      string
	reader     messageReader
	ingester   ConsumptionIngester
	items      ItemResolver
	retryDelay time.Duration // Шаг паузы между попытками сохранения
	ctx        context.Context
	cancel     context.CancelFunc
	processed  int64
	skipped    int64
}

// NewConsumptionConsumer создает consumer топика расхода
func NewConsumptionConsumer(brokers, topic, username, password, caCert string, ingester ConsumptionIngester, items ItemResolver) *ConsumptionConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     ParseKafkaBrokers(brokers),
		Topic:       topic,
		GroupID:     consumptionGroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      CreateKafkaDialer(username, password, caCert),
	})
	return &ConsumptionConsumer{
		topic:      topic,
		reader:     reader,
		ingester:   ingester,
		items:      items,
		retryDelay: time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start запускает чтение в отдельной горутине
func (cc *ConsumptionConsumer) Start() {
	logger := config.GetLogger().WithFields(logrus.Fields{"topic": cc.topic, "group_id": consumptionGroupID})
	logger.Info("Kafka consumer расхода запущен")

	go func() {
		for {
			msg, err := cc.reader.FetchMessage(cc.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || cc.ctx.Err() != nil {
					logger.Info("Kafka consumer расхода остановлен")
					return
				}
				logger.WithError(err).Warn("Ошибка чтения из Kafka")
				time.Sleep(1 * time.Second)
				continue
			}

			if !cc.consume(cc.ctx, msg) {
				logger.Info("Kafka consumer расхода остановлен")
				return
			}
		}
	}()
}

// consume сохраняет сообщение и коммитит offset. Временные ошибки повторяются
// без коммита, пока запись не сохранится или ctx не отменят: offset не уходит
// дальше несохраненной записи. false, если ctx отменен и offset не закоммичен
func (cc *ConsumptionConsumer) consume(ctx context.Context, msg kafka.Message) bool {
	logger := config.GetLogger().WithFields(logrus.Fields{
		"topic":     cc.topic,
		"offset":    msg.Offset,
		"partition": msg.Partition,
	})

	for {
		err := cc.handle(ctx, msg.Value)
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			atomic.AddInt64(&cc.processed, 1)
			break
		}
		if isPermanentConsumeError(err) {
			atomic.AddInt64(&cc.skipped, 1)
			logger.WithError(err).Warn("Сообщение расхода пропущено")
			break
		}

		logger.WithError(err).Warn("Запись расхода не сохранена, повторяем без коммита offset")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * cc.retryStep()):
		}
	}

	if err := cc.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		logger.WithError(err).Warn("Ошибка коммита offset")
	}
	return true
}

// isPermanentConsumeError ошибки, которые не исчезнут при повторе того же сообщения
func isPermanentConsumeError(err error) bool {
	return services.IsValidationError(err) || errors.Is(err, errUndecodable)
}

func (cc *ConsumptionConsumer) retryStep() time.Duration {
	if cc.retryDelay <= 0 {
		return time.Second
	}
	return cc.retryDelay
}

// Stop останавливает чтение и закрывает reader
func (cc *ConsumptionConsumer) Stop() error {
	cc.cancel()
	return cc.reader.Close()
}

// Stats количество обработанных и пропущенных сообщений
func (cc *ConsumptionConsumer) Stats() (processed, skipped int64) {
	return atomic.LoadInt64(&cc.processed), atomic.LoadInt64(&cc.skipped)
}

// handle декодирует сообщение и сохраняет запись. Ошибка БД повторяется до трех раз
func (cc *ConsumptionConsumer) handle(ctx context.Context, value []byte) error {
	msg, err := DecodeConsumptionMessage(value)
	if err != nil {
		return err
	}
	record, err := cc.toRecord(ctx, msg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		created, err := cc.ingester.Ingest(ctx, record)
		if err == nil {
			if !created {
				config.GetLogger().WithField("source_reference", record.SourceReference).Debug("Повтор сообщения расхода проигнорирован")
			}
			return nil
		}
		if services.IsValidationError(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * cc.retryStep()):
		}
	}
	return lastErr
}

// toRecord привязывает сообщение к позиции склада. Неизвестный артикул дает
// непривязанную запись: ее увидит предпросмотр, но не слияние
func (cc *ConsumptionConsumer) toRecord(ctx context.Context, msg *ConsumptionMessage) (*models.ExternalConsumptionRecord, error) {
	record := &models.ExternalConsumptionRecord{
		HotelID:         msg.HotelID,
		Source:          msg.Source,
		SourceReference: msg.SourceReference,
		Description:     msg.Description,
		QuantityUsed:    msg.QuantityUsed,
		ProducedAt:      msg.ProducedAt,
	}
	switch {
	case msg.ItemID != "":
		itemID := msg.ItemID
		record.ItemID = &itemID
	case msg.SKU != "" && cc.items != nil:
		item, err := cc.items.FindBySKU(ctx, msg.HotelID, msg.SKU)
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		if item != nil {
			record.ItemID = &item.ID
		}
	}
	return record, nil
}

// DecodeConsumptionMessage принимает protobuf Struct, иначе JSON
func DecodeConsumptionMessage(value []byte) (*ConsumptionMessage, error) {
	raw := value
	st := &structpb.Struct{}
	if err := proto.Unmarshal(value, st); err == nil {
		if _, ok := st.GetFields()["source_reference"]; ok {
			if raw, err = json.Marshal(st.AsMap()); err != nil {
				return nil, fmt.Errorf("%w: %v", errUndecodable, err)
			}
		}
	}

	var msg ConsumptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodable, err)
	}
	msg.SKU = strings.TrimSpace(msg.SKU)
	return &msg, nil
}
