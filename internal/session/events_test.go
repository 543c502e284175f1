package session_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-mastery/internal/platform/database/databasetest"
	"github.com/p-n-ai/pai-mastery/internal/session"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := session.NewMemoryEventLogger()

	err := logger.LogEvent(context.Background(), session.Event{
		SessionID: "s-1",
		LearnerID: "ana",
		EventType: session.EventResponse,
		Data: map[string]any{
			"score": 1.0,
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != session.EventResponse {
		t.Errorf("EventType = %q, want %s", events[0].EventType, session.EventResponse)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	if err := session.NewMemoryEventLogger().LogEvent(context.Background(), session.Event{SessionID: "s-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestNewPostgresEventLogger_NilPool(t *testing.T) {
	if _, err := session.NewPostgresEventLogger(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestPostgresEventLogger_Integration(t *testing.T) {
	db := databasetest.Start(t)

	logger, err := session.NewPostgresEventLogger(t.Context(), db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresEventLogger() error = %v", err)
	}
	err = logger.LogEvent(t.Context(), session.Event{
		SessionID: "s-1",
		LearnerID: "ana",
		EventType: session.EventStarted,
		Data:      map[string]any{"item_id": "A"},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var n int
	if err := db.Pool.QueryRow(t.Context(), `SELECT count(*) FROM session_events WHERE session_id = 's-1'`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 1 {
		t.Errorf("stored events = %d, want 1", n)
	}
	if err := logger.LogEvent(t.Context(), session.Event{EventType: session.EventStarted}); err == nil {
		t.Error("expected error for missing session id")
	}
}
