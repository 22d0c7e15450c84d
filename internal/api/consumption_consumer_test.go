package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"hotelstock/server/internal/models"
	"hotelstock/server/internal/services"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeIngester struct {
	records  []*models.ExternalConsumptionRecord
	err      error
	failures int // Сколько первых вызовов вернут err, 0 означает все
	calls    int
}

func (f *fakeIngester) Ingest(ctx context.Context, record *models.ExternalConsumptionRecord) (bool, error) {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return false, f.err
	}
	f.records = append(f.records, record)
	return true, nil
}

type fakeResolver map[string]string

func (f fakeResolver) FindBySKU(ctx context.Context, hotelID, sku string) (*models.StockItem, error) {
	id, ok := f[hotelID+"/"+sku]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &models.StockItem{ID: id, HotelID: hotelID, SKU: sku}, nil
}

func TestDecodeConsumptionMessageJSON(t *testing.T) {
	msg, err := DecodeConsumptionMessage([]byte(`{
		"hotel_id": "h1",
		"sku": " GIN-01 ",
		"source_reference": "cocktail-77",
		"quantity_used": "1.5",
		"produced_at": "2024-03-10T21:30:00Z"
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.SKU != "GIN-01" || msg.SourceReference != "cocktail-77" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.QuantityUsed.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected 1.5, got %s", msg.QuantityUsed)
	}
	if msg.ProducedAt.Day() != 10 {
		t.Fatalf("unexpected produced_at: %s", msg.ProducedAt)
	}
}

func TestDecodeConsumptionMessageProto(t *testing.T) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"hotel_id":         "h1",
		"item_id":          "item-1",
		"source":           "cocktails",
		"source_reference": "cocktail-78",
		"quantity_used":    0.75,
	})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := DecodeConsumptionMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ItemID != "item-1" || msg.SourceReference != "cocktail-78" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.QuantityUsed.Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("expected 0.75, got %s", msg.QuantityUsed)
	}
}

func TestDecodeConsumptionMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeConsumptionMessage([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestConsumerLinksRecordBySKU(t *testing.T) {
	ingester := &fakeIngester{}
	cc := &ConsumptionConsumer{ingester: ingester, items: fakeResolver{"h1/GIN-01": "item-gin"}}

	err := cc.handle(context.Background(), []byte(`{"hotel_id":"h1","sku":"GIN-01","source_reference":"c-1","quantity_used":2}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	err = cc.handle(context.Background(), []byte(`{"hotel_id":"h1","sku":"UNKNOWN","source_reference":"c-2","quantity_used":1}`))
	if err != nil {
		t.Fatalf("handle unknown sku: %v", err)
	}

	if len(ingester.records) != 2 {
		t.Fatalf("expected 2 ingested records, got %d", len(ingester.records))
	}
	if ingester.records[0].ItemID == nil || *ingester.records[0].ItemID != "item-gin" {
		t.Fatalf("expected record linked to item-gin, got %v", ingester.records[0].ItemID)
	}
	if ingester.records[1].ItemID != nil {
		t.Fatalf("unknown sku must stay unlinked")
	}
}

func TestConsumerDoesNotRetryValidationErrors(t *testing.T) {
	ingester := &fakeIngester{err: &services.ValidationError{Field: "quantity_used", Constraint: "должно быть больше 0"}}
	cc := &ConsumptionConsumer{ingester: ingester}

	err := cc.handle(context.Background(), []byte(`{"hotel_id":"h1","source_reference":"c-3","quantity_used":0}`))
	if !services.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ingester.calls != 1 {
		t.Fatalf("validation errors must not be retried, got %d calls", ingester.calls)
	}
}

func TestConsumerStopsRetryingOnCancel(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("connection refused")}
	cc := &ConsumptionConsumer{ingester: ingester}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cc.handle(ctx, []byte(`{"hotel_id":"h1","source_reference":"c-4","quantity_used":1}`))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ingester.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", ingester.calls)
	}
}

type fakeReader struct {
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumeCommitsOnlyAfterRecordIsStored(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("connection refused"), failures: 4}
	reader := &fakeReader{}
	cc := &ConsumptionConsumer{reader: reader, ingester: ingester, retryDelay: time.Millisecond}

	msg := kafka.Message{Offset: 42, Value: []byte(`{"hotel_id":"h1","item_id":"i1","source_reference":"c-5","quantity_used":1}`)}
	if !cc.consume(context.Background(), msg) {
		t.Fatalf("consume must finish once the database recovers")
	}
	if ingester.calls != 5 || len(ingester.records) != 1 {
		t.Fatalf("expected 4 failures and one stored record, got %d calls, %d records", ingester.calls, len(ingester.records))
	}
	if len(reader.committed) != 1 || reader.committed[0].Offset != 42 {
		t.Fatalf("expected a single commit of offset 42, got %+v", reader.committed)
	}
	if processed, skipped := cc.Stats(); processed != 1 || skipped != 0 {
		t.Fatalf("unexpected stats processed=%d skipped=%d", processed, skipped)
	}
}

func TestConsumeDoesNotCommitWhileDatabaseIsDown(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("connection refused")}
	reader := &fakeReader{}
	cc := &ConsumptionConsumer{reader: reader, ingester: ingester, retryDelay: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg := kafka.Message{Offset: 7, Value: []byte(`{"hotel_id":"h1","item_id":"i1","source_reference":"c-6","quantity_used":1}`)}
	if cc.consume(ctx, msg) {
		t.Fatalf("consume must stop on cancel without finishing the message")
	}
	if len(reader.committed) != 0 {
		t.Fatalf("offset of an unsaved record must not be committed, got %+v", reader.committed)
	}
	if ingester.calls < 3 {
		t.Fatalf("expected repeated attempts, got %d", ingester.calls)
	}
	if _, skipped := cc.Stats(); skipped != 0 {
		t.Fatalf("unsaved record must not be counted as skipped")
	}
}

func TestConsumeCommitsPermanentFailures(t *testing.T) {
	cases := map[string]struct {
		value    []byte
		ingester *fakeIngester
	}{
		"undecodable": {
			value:    []byte("not json"),
			ingester: &fakeIngester{},
		},
		"invalid quantity": {
			value:    []byte(`{"hotel_id":"h1","source_reference":"c-7","quantity_used":0}`),
			ingester: &fakeIngester{err: &services.ValidationError{Field: "quantity_used", Constraint: "должно быть больше 0"}},
		},
	}

	for name, tc := range cases {
		reader := &fakeReader{}
		cc := &ConsumptionConsumer{reader: reader, ingester: tc.ingester, retryDelay: time.Millisecond}
		if !cc.consume(context.Background(), kafka.Message{Offset: 1, Value: tc.value}) {
			t.Fatalf("%s: consume must finish", name)
		}
		if len(reader.committed) != 1 {
			t.Fatalf("%s: permanent failure must be committed, got %d commits", name, len(reader.committed))
		}
		if _, skipped := cc.Stats(); skipped != 1 {
			t.Fatalf("%s: expected one skipped message, got %d", name, skipped)
		}
	}
}
