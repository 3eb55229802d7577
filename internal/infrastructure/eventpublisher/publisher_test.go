package eventpublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/notify"
	"github.com/iho/revledger/internal/usecase"
)

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{{ID: "01A", EventType: domain.EventTypeEntryRecorded}},
	}
	pub := &stubPublisher{}
	counter := countingCounter{}
	ep := newTestPublisher(repo, pub)
	ep.counter = counter

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	if len(repo.marked) != 1 || repo.marked[0] != "01A" {
		t.Fatalf("expected event to be marked published, got %#v", repo.marked)
	}
	if counter[domain.EventTypeEntryRecorded] != 1 {
		t.Fatalf("expected published counter to be incremented, got %v", counter)
	}
}

func TestProcessEventsContinuesOnPublishError(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{
			{ID: "01A", EventType: domain.EventTypeEntryRecorded},
			{ID: "01B", EventType: domain.EventTypeOverRefundFlagged},
		},
	}
	pub := &stubPublisher{
		errorsByID: map[string]error{"01A": errors.New("fail")},
	}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents returned error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].ID != "01B" {
		t.Fatalf("expected only 01B to be published, got %#v", pub.published)
	}
	if len(repo.marked) != 1 || repo.marked[0] != "01B" {
		t.Fatalf("expected only 01B to be marked, got %#v", repo.marked)
	}
}

func TestCleanupRespectsRetentionAndPeriod(t *testing.T) {
	repo := &stubOutboxRepo{}
	ep := newTestPublisher(repo, &stubPublisher{})
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	ep.now = func() time.Time { return now }
	ep.retention = 24 * time.Hour

	if err := ep.cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if err := ep.cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if len(repo.purgedBefore) != 1 {
		t.Fatalf("expected one cleanup within the period, got %d", len(repo.purgedBefore))
	}
	if want := now.Add(-24 * time.Hour); !repo.purgedBefore[0].Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.purgedBefore[0])
	}
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	repo := &stubOutboxRepo{}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)
	ep.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ep.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestLogPublisherWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(zerolog.New(&buf))

	err := pub.Publish(context.Background(), &domain.OutboxEvent{
		ID:        "01A",
		EventType: domain.EventTypeEntryRecorded,
		Payload:   map[string]any{"sequence": 4},
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if !strings.Contains(buf.String(), `"payload":{"sequence":4}`) {
		t.Fatalf("expected payload in log, got %s", buf.String())
	}
}

func TestWebhookPublisherPostsNotification(t *testing.T) {
	var got Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pub := NewWebhookPublisher(notify.NewWebhookClient(server.URL, time.Second))
	err := pub.Publish(context.Background(), &domain.OutboxEvent{
		ID:          "01A",
		AggregateID: "evt_1",
		EventType:   domain.EventTypeEntryRecorded,
		Payload:     map[string]any{"charity": "5.00"},
		CreatedAt:   time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if got.Type != domain.EventTypeEntryRecorded || got.AggregateID != "evt_1" || got.Data["charity"] != "5.00" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func newTestPublisher(repo *stubOutboxRepo, pub *stubPublisher) *EventPublisher {
	return NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		BatchSize:  10,
		Interval:   time.Second,
	})
}

type stubOutboxRepo struct {
	events       []*domain.OutboxEvent
	marked       []string
	purgedBefore []time.Time
}

func (s *stubOutboxRepo) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return nil
}

func (s *stubOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if len(s.events) <= limit {
		return append([]*domain.OutboxEvent(nil), s.events...), nil
	}
	return append([]*domain.OutboxEvent(nil), s.events[:limit]...), nil
}

func (s *stubOutboxRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubOutboxRepo) ListForEvent(ctx context.Context, eventID string) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (s *stubOutboxRepo) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	s.purgedBefore = append(s.purgedBefore, before)
	return 0, nil
}

type stubPublisher struct {
	published  []*domain.OutboxEvent
	errorsByID map[string]error
}

func (s *stubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if err := s.errorsByID[event.ID]; err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}

type countingCounter map[string]int

func (c countingCounter) IncPublished(eventType string) { c[eventType]++ }
