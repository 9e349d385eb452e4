package storage

import (
	"context"
	"testing"
	"time"

	"github.com/hostreel/viewlens/internal/models"
)

func ts(minute int) time.Time {
	return time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)
}

func storedEvent(id, videoID, eventType string, at time.Time) *models.PlaybackEvent {
	return &models.PlaybackEvent{
		ID:        id,
		VideoID:   videoID,
		SessionID: "s-1",
		EventType: eventType,
		Timestamp: at,
	}
}

func TestInMemoryEventStoreFilter(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()

	for _, e := range []*models.PlaybackEvent{
		storedEvent("1", "vid-1", "play", ts(0)),
		storedEvent("2", "vid-1", "timeupdate", ts(5)),
		storedEvent("3", "vid-1", "ended", ts(10)),
		storedEvent("4", "vid-2", "play", ts(2)),
	} {
		if err := s.SaveEvent(ctx, e); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	all, err := s.ListEvents(ctx, EventFilter{VideoID: "vid-1"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events for vid-1, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatal("events must come back in timestamp order")
		}
	}

	start, end := ts(3), ts(7)
	ranged, _ := s.ListEvents(ctx, EventFilter{VideoID: "vid-1", Start: &start, End: &end})
	if len(ranged) != 1 || ranged[0].ID != "2" {
		t.Errorf("range filter returned %+v, want only event 2", ranged)
	}

	typed, _ := s.ListEvents(ctx, EventFilter{VideoID: "vid-1", EventTypes: []string{"play", "ended"}})
	if len(typed) != 2 {
		t.Errorf("type filter returned %d events, want 2", len(typed))
	}
}

func TestInMemoryEventStoreHasEvents(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()

	if has, _ := s.HasEvents(ctx, "vid-1"); has {
		t.Error("empty store should have no events")
	}

	_ = s.SaveEvent(ctx, storedEvent("1", "vid-1", "play", ts(0)))

	if has, _ := s.HasEvents(ctx, "vid-1"); !has {
		t.Error("vid-1 should have events")
	}
	if has, _ := s.HasEvents(ctx, "vid-2"); has {
		t.Error("vid-2 should have no events")
	}
}

func TestInMemoryEventStoreCopiesOnRead(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	_ = s.SaveEvent(ctx, storedEvent("1", "vid-1", "play", ts(0)))

	list, _ := s.ListEvents(ctx, EventFilter{VideoID: "vid-1"})
	list[0].EventType = "mutated"

	again, _ := s.ListEvents(ctx, EventFilter{VideoID: "vid-1"})
	if again[0].EventType != "play" {
		t.Error("callers must not be able to mutate stored events")
	}
}

func TestInMemorySessionRepoUpsert(t *testing.T) {
	r := NewInMemorySessionRepo()
	ctx := context.Background()

	dc := &models.DeviceContext{ScreenWidth: 1920, ScreenHeight: 1080}
	dc.Hash = dc.Fingerprint()
	if err := r.UpsertDeviceContext(ctx, dc); err != nil {
		t.Fatalf("UpsertDeviceContext: %v", err)
	}
	// Same content hash collapses to one row.
	if err := r.UpsertDeviceContext(ctx, dc); err != nil {
		t.Fatalf("UpsertDeviceContext: %v", err)
	}

	first := &models.ViewerSession{
		VideoID: "vid-1", SessionID: "s-1",
		DeviceContextHash: dc.Hash, UserAgent: "ua-1",
	}
	if err := r.UpsertSession(ctx, first); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	// A later play refreshes non-empty fields and keeps the rest.
	update := &models.ViewerSession{
		VideoID: "vid-1", SessionID: "s-1",
		UserID: "u-9",
	}
	if err := r.UpsertSession(ctx, update); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := r.GetSession(ctx, "vid-1", "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("session should exist")
	}
	if got.UserID != "u-9" {
		t.Errorf("UserID = %q, want u-9", got.UserID)
	}
	if got.UserAgent != "ua-1" {
		t.Errorf("UserAgent = %q, empty update must not erase it", got.UserAgent)
	}
	if got.DeviceContextHash != dc.Hash {
		t.Errorf("DeviceContextHash = %q, want %q", got.DeviceContextHash, dc.Hash)
	}

	details, _ := r.ListSessionDetails(ctx, "vid-1", nil, nil)
	if len(details) != 1 {
		t.Fatalf("expected 1 session detail, got %d", len(details))
	}
	if details[0].Context == nil || details[0].Context.ScreenWidth != 1920 {
		t.Errorf("joined context = %+v, want screen width 1920", details[0].Context)
	}
}

func TestInMemorySessionRepoGetMissing(t *testing.T) {
	r := NewInMemorySessionRepo()
	got, err := r.GetSession(context.Background(), "vid-1", "ghost")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("missing session = %+v, want nil", got)
	}
}

func TestInMemoryVideoRepo(t *testing.T) {
	r := NewInMemoryVideoRepo()
	ctx := context.Background()

	if v, err := r.GetByID(ctx, "ghost"); err != nil || v != nil {
		t.Fatalf("missing video = (%+v, %v), want (nil, nil)", v, err)
	}

	for _, v := range []*models.Video{
		{ID: "vid-b", OrganizationID: "org-1", Duration: 60},
		{ID: "vid-a", OrganizationID: "org-1", Duration: 90},
		{ID: "vid-c", OrganizationID: "org-2", Duration: 30},
	} {
		if err := r.Upsert(ctx, v); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := r.GetByID(ctx, "vid-a")
	if err != nil || got == nil {
		t.Fatalf("GetByID = (%+v, %v)", got, err)
	}
	if got.Duration != 90 {
		t.Errorf("Duration = %d, want 90", got.Duration)
	}

	list, _ := r.ListByOrganization(ctx, "org-1")
	if len(list) != 2 {
		t.Fatalf("org-1 has %d videos, want 2", len(list))
	}
	if list[0].ID != "vid-a" || list[1].ID != "vid-b" {
		t.Errorf("list order = [%s, %s], want [vid-a, vid-b]", list[0].ID, list[1].ID)
	}
}
