package services

import (
	"context"
	"errors"
	"time"

	"hotelstock/server/internal/config"
)

// Типы событий склада
const (
	EventLineUpdated        = "line.updated"
	EventStocktakePopulated = "stocktake.populated"
	EventStocktakeApproved  = "stocktake.approved"
	EventConsumptionMerged  = "consumption.merged"
	EventPeriodClosed       = "period.closed"
	EventPeriodReopened     = "period.reopened"
	EventMovementRecorded   = "movement.recorded"
)

// StockEvent событие об изменении, отправляется только после коммита
type StockEvent struct {
	Type        string                 `json:"type"`
	HotelID     string                 `json:"hotel_id"`
	StocktakeID string                 `json:"stocktake_id,omitempty"`
	PeriodID    string                 `json:"period_id,omitempty"`
	LineID      string                 `json:"line_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// EventPublisher доставляет события слою рассылки
type EventPublisher interface {
	Publish(ctx context.Context, event StockEvent) error
}

// MultiPublisher рассылает событие всем получателям
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher создает MultiPublisher, пропуская nil
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Publish отправляет событие каждому получателю и собирает ошибки
func (m *MultiPublisher) Publish(ctx context.Context, event StockEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emitEvent публикует событие; ошибка доставки только логируется
func emitEvent(ctx context.Context, publisher EventPublisher, event StockEvent) {
	if publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := publisher.Publish(ctx, event); err != nil {
		config.LogError(config.GetLogger(), "services", "emitEvent", event.Type,
			map[string]interface{}{"hotel_id": event.HotelID, "stocktake_id": event.StocktakeID}, err)
	}
}
