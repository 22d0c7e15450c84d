package services

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	events []StockEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event StockEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestMultiPublisherFansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	multi := NewMultiPublisher(ok, nil, failing)

	err := multi.Publish(context.Background(), StockEvent{Type: EventLineUpdated, LineID: "l1"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined broker error, got %v", err)
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Fatalf("every publisher must receive the event")
	}
}

func TestEmitEventStampsTimeAndSwallowsErrors(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("ws closed")}
	emitEvent(context.Background(), failing, StockEvent{Type: EventPeriodClosed})

	if len(failing.events) != 1 {
		t.Fatalf("expected one delivery attempt")
	}
	if failing.events[0].OccurredAt.IsZero() {
		t.Fatalf("OccurredAt must be stamped")
	}

	emitEvent(context.Background(), nil, StockEvent{Type: EventPeriodClosed})
}
