package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/storage"
)

func newIngestFixture() (*IngestService, *storage.InMemoryEventStore, *storage.InMemorySessionRepo) {
	events := storage.NewInMemoryEventStore()
	sessions := storage.NewInMemorySessionRepo()
	return NewIngestService(events, sessions, zap.NewNop(), nil), events, sessions
}

func TestRecordRejectsMissingRequiredFields(t *testing.T) {
	svc, _, _ := newIngestFixture()
	ctx := context.Background()

	cases := []EventInput{
		{EventType: "play"},
		{VideoID: "vid-1"},
		{VideoID: "   ", EventType: "play"},
		{},
	}
	for _, in := range cases {
		if err := svc.Record(ctx, in); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Record(%+v) = %v, want ErrInvalidEvent", in, err)
		}
	}
}

func TestRecordCoercesNumericGarbage(t *testing.T) {
	svc, events, _ := newIngestFixture()
	ctx := context.Background()

	cases := []struct {
		name              string
		current, duration float64
		wantCur, wantDur  int
	}{
		{"negative", -5, -1, 0, 0},
		{"fractional", 12.9, 300.4, 12, 300},
		{"nan", math.NaN(), math.Inf(1), 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Record(ctx, EventInput{
				VideoID:     "vid-" + tc.name,
				EventType:   "timeupdate",
				CurrentTime: tc.current,
				Duration:    tc.duration,
				SessionID:   "s-1",
			})
			if err != nil {
				t.Fatalf("Record: %v", err)
			}

			list, err := events.ListEvents(ctx, storage.EventFilter{VideoID: "vid-" + tc.name})
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected 1 stored event, got %d", len(list))
			}
			if list[0].CurrentTime != tc.wantCur || list[0].Duration != tc.wantDur {
				t.Errorf("stored (%d, %d), want (%d, %d)",
					list[0].CurrentTime, list[0].Duration, tc.wantCur, tc.wantDur)
			}
		})
	}
}

func TestRecordNormalizesEventType(t *testing.T) {
	svc, events, _ := newIngestFixture()
	ctx := context.Background()

	if err := svc.Record(ctx, EventInput{VideoID: "vid-1", EventType: "  PLAY "}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	list, _ := events.ListEvents(ctx, storage.EventFilter{VideoID: "vid-1"})
	if len(list) != 1 || list[0].EventType != "play" {
		t.Fatalf("event type not normalized: %+v", list)
	}
	if list[0].ID == "" {
		t.Error("stored event must carry a generated ID")
	}
}

func TestRecordSessionUpsertIdempotence(t *testing.T) {
	svc, _, sessions := newIngestFixture()
	ctx := context.Background()

	in := EventInput{
		VideoID:   "vid-1",
		EventType: "play",
		SessionID: "s-1",
		UserAgent: "ua",
		IP:        "203.0.113.7",
		Context: &ContextInput{
			ScreenWidth:  1920,
			ScreenHeight: 1080,
			Language:     "en-US",
		},
	}

	// Replayed play events for the same session converge on one row.
	for i := 0; i < 3; i++ {
		if err := svc.Record(ctx, in); err != nil {
			t.Fatalf("Record #%d: %v", i, err)
		}
	}

	details, err := sessions.ListSessionDetails(ctx, "vid-1", nil, nil)
	if err != nil {
		t.Fatalf("ListSessionDetails: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("expected 1 session, got %d", len(details))
	}
	if details[0].Context == nil {
		t.Fatal("session should be linked to its device context")
	}
	if details[0].Context.ScreenWidth != 1920 {
		t.Errorf("context screen width = %d, want 1920", details[0].Context.ScreenWidth)
	}
}

func TestRecordSkipsSessionWithoutContext(t *testing.T) {
	svc, _, sessions := newIngestFixture()
	ctx := context.Background()

	// Play without a context payload stores the event only.
	if err := svc.Record(ctx, EventInput{VideoID: "vid-1", EventType: "play", SessionID: "s-1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Pause with a context is not a play; no session either.
	if err := svc.Record(ctx, EventInput{
		VideoID: "vid-1", EventType: "pause", SessionID: "s-2",
		Context: &ContextInput{ScreenWidth: 800},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	details, _ := sessions.ListSessionDetails(ctx, "vid-1", nil, nil)
	if len(details) != 0 {
		t.Fatalf("expected no sessions, got %d", len(details))
	}
}
