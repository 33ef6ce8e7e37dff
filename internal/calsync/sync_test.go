package calsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"questpilot/internal/domain"
	"questpilot/internal/repo"
	"questpilot/internal/schedule"
)

var syncNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func eventAt(id, title, description string, dayOffset int, lastModified int64) domain.CalendarEvent {
	start := time.Date(2026, 3, 2+dayOffset, 12, 0, 0, 0, time.UTC)
	return domain.CalendarEvent{
		ID:             id,
		Title:          title,
		Description:    description,
		StartMs:        start.UnixMilli(),
		EndMs:          start.Add(time.Hour).UnixMilli(),
		CalendarID:     "personal",
		LastModifiedMs: lastModified,
	}
}

type fakeProvider struct {
	granted bool
	events  []domain.CalendarEvent
	err     error
}

func (p fakeProvider) HasPermission(context.Context) bool { return p.granted }

func (p fakeProvider) EventsInRange(_ context.Context, startMs, endMs int64, _ []string) ([]domain.CalendarEvent, error) {
	if p.err != nil {
		return nil, p.err
	}
	var res []domain.CalendarEvent
	for _, ev := range p.events {
		if ev.StartMs >= startMs && ev.StartMs < endMs {
			res = append(res, ev)
		}
	}
	return res, nil
}

type fakeQuests struct {
	byTitle map[string]domain.Quest
	byEvent map[string]domain.Quest
	inserts int
	updates int
	deletes int
}

func newFakeQuests() *fakeQuests {
	return &fakeQuests{byTitle: map[string]domain.Quest{}, byEvent: map[string]domain.Quest{}}
}

func (f *fakeQuests) ByTitle(_ context.Context, title string) (domain.Quest, error) {
	if q, ok := f.byTitle[title]; ok {
		return q, nil
	}
	return domain.Quest{}, repo.ErrNotFound
}

func (f *fakeQuests) ByCalendarEventID(_ context.Context, eventID string) (domain.Quest, error) {
	if q, ok := f.byEvent[eventID]; ok {
		return q, nil
	}
	return domain.Quest{}, repo.ErrNotFound
}

func (f *fakeQuests) Insert(_ context.Context, q domain.Quest) error {
	f.inserts++
	f.byTitle[q.Title] = q
	if q.CalendarEventID != nil {
		f.byEvent[*q.CalendarEventID] = q
	}
	return nil
}

func (f *fakeQuests) Update(_ context.Context, q domain.Quest) error {
	f.updates++
	f.byTitle[q.Title] = q
	if q.CalendarEventID != nil {
		f.byEvent[*q.CalendarEventID] = q
	}
	return nil
}

func (f *fakeQuests) Delete(_ context.Context, id string) error {
	f.deletes++
	for t, q := range f.byTitle {
		if q.ID == id {
			delete(f.byTitle, t)
		}
	}
	for e, q := range f.byEvent {
		if q.ID == id {
			delete(f.byEvent, e)
		}
	}
	return nil
}

type fakeCache struct {
	stored       []domain.CalendarEvent
	inserts      int
	updates      int
	markDeleted  int
	failInsertID string
}

func (f *fakeCache) InRange(_ context.Context, startMs, endMs int64) ([]domain.CalendarEvent, error) {
	var res []domain.CalendarEvent
	for _, ev := range f.stored {
		if !ev.Deleted && ev.StartMs >= startMs && ev.StartMs < endMs {
			res = append(res, ev)
		}
	}
	return res, nil
}

func (f *fakeCache) Insert(_ context.Context, e domain.CalendarEvent) error {
	if e.ID == f.failInsertID {
		return errors.New("simulated storage failure")
	}
	f.inserts++
	f.stored = append(f.stored, e)
	return nil
}

func (f *fakeCache) Update(_ context.Context, e domain.CalendarEvent) error {
	f.updates++
	for i := range f.stored {
		if f.stored[i].ID == e.ID {
			f.stored[i] = e
		}
	}
	return nil
}

func (f *fakeCache) MarkDeleted(_ context.Context, id string) error {
	f.markDeleted++
	for i := range f.stored {
		if f.stored[i].ID == id {
			f.stored[i].Deleted = true
		}
	}
	return nil
}

func newSyncer(p Provider, q QuestStore, c EventCache) *Syncer {
	return &Syncer{
		Provider: p,
		Quests:   q,
		Cache:    c,
		Settings: Settings{Enabled: true, DefaultReward: 5, DefaultDurationMinutes: 25, DefaultBreakMinutes: 5},
		Now:      func() time.Time { return syncNow },
	}
}

func TestInitialSyncCreatesQuests(t *testing.T) {
	quests := newFakeQuests()
	cache := &fakeCache{}
	s := newSyncer(fakeProvider{granted: true, events: []domain.CalendarEvent{
		eventAt("E1", "Dentist", "C5-10D20B5A[photo of desk]", 1, 100),
		eventAt("E2", "Tax return", "", 2, 100),
	}}, quests, cache)

	res := s.InitialSync(context.Background())
	if res.Status != StatusOK || res.Created != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	q, err := quests.ByCalendarEventID(context.Background(), "E1")
	if err != nil {
		t.Fatalf("linked quest: %v", err)
	}
	if q.RewardMin != 5 || q.RewardMax != 10 || q.DurationMinutes != 20 || !q.ProofRequired {
		t.Fatalf("metadata not applied: %+v", q)
	}
	if q.AutoDestructOn == nil || *q.AutoDestructOn != "2026-03-03" {
		t.Fatalf("auto destruct: %v", q.AutoDestructOn)
	}
	sched, err := schedule.FromJSON(q.ScheduleJSON)
	if err != nil || sched.Kind != schedule.KindSpecificDate || sched.Date != "2026-03-03" {
		t.Fatalf("schedule: %+v (%v)", sched, err)
	}
}

func TestInitialSyncSkipsExistingTitle(t *testing.T) {
	quests := newFakeQuests()
	quests.byTitle["Dentist"] = domain.Quest{ID: "existing", Title: "Dentist"}
	cache := &fakeCache{}
	s := newSyncer(fakeProvider{granted: true, events: []domain.CalendarEvent{
		eventAt("E1", "Dentist", "", 1, 100),
	}}, quests, cache)

	res := s.InitialSync(context.Background())
	if res.Created != 0 || res.Skipped != 0 || quests.inserts != 0 {
		t.Fatalf("expected duplicate title skipped without error: %+v", res)
	}
}

func TestSyncPermissionDenied(t *testing.T) {
	quests := newFakeQuests()
	cache := &fakeCache{stored: []domain.CalendarEvent{eventAt("E1", "Dentist", "", 1, 100)}}
	s := newSyncer(fakeProvider{granted: false}, quests, cache)

	if res := s.InitialSync(context.Background()); res.Status != StatusPermissionDenied {
		t.Fatalf("initial: %+v", res)
	}
	if res := s.IncrementalSync(context.Background()); res.Status != StatusPermissionDenied {
		t.Fatalf("incremental: %+v", res)
	}
	if cache.inserts != 0 || cache.updates != 0 || cache.markDeleted != 0 || quests.inserts != 0 {
		t.Fatalf("permission denial must not mutate stored state")
	}
}

func TestSyncDisabled(t *testing.T) {
	s := newSyncer(fakeProvider{granted: true}, newFakeQuests(), &fakeCache{})
	s.Settings.Enabled = false
	if res := s.InitialSync(context.Background()); res.Status != StatusOK || res.Created != 0 {
		t.Fatalf("disabled sync must be a no-op: %+v", res)
	}
}

func TestIncrementalSyncDiffScenario(t *testing.T) {
	quests := newFakeQuests()
	e1 := eventAt("E1", "Dentist", "", 1, 100)
	e2 := eventAt("E2", "Tax return", "", 2, 100)
	id1, id2 := "E1", "E2"
	quests.byEvent["E1"] = domain.Quest{ID: "q1", Title: "Dentist", CalendarEventID: &id1, ScheduleJSON: `{"kind":"date","date":"2026-03-03"}`}
	quests.byTitle["Dentist"] = quests.byEvent["E1"]
	quests.byEvent["E2"] = domain.Quest{ID: "q2", Title: "Tax return", CalendarEventID: &id2, ScheduleJSON: `{"kind":"date","date":"2026-03-04"}`}
	quests.byTitle["Tax return"] = quests.byEvent["E2"]
	cache := &fakeCache{stored: []domain.CalendarEvent{e1, e2}}

	e2mod := eventAt("E2", "Tax return", "C20", 2, 200)
	e3 := eventAt("E3", "Car service", "", 3, 100)
	s := newSyncer(fakeProvider{granted: true, events: []domain.CalendarEvent{e2mod, e3}}, quests, cache)

	res := s.IncrementalSync(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status: %+v", res)
	}
	if res.Created != 1 || res.Deleted != 1 || res.Updated != 1 || res.Skipped != 0 {
		t.Fatalf("expected exactly one create/delete/update, got %+v", res)
	}
	if quests.inserts != 1 || quests.deletes != 1 || quests.updates != 1 {
		t.Fatalf("quest calls: %+v", quests)
	}
	if cache.markDeleted != 1 || cache.updates != 1 || cache.inserts != 1 {
		t.Fatalf("cache calls: %+v", cache)
	}
	updated := quests.byEvent["E2"]
	if updated.RewardMin != 20 || updated.RewardMax != 20 {
		t.Fatalf("modified event reward not applied: %+v", updated)
	}
	if updated.Synced {
		t.Fatalf("updated quest must be flagged unsynced")
	}
}

func TestSyncSkipsFailingEventAndContinues(t *testing.T) {
	quests := newFakeQuests()
	cache := &fakeCache{failInsertID: "E1"}
	s := newSyncer(fakeProvider{granted: true, events: []domain.CalendarEvent{
		eventAt("E1", "Dentist", "", 1, 100),
		eventAt("E2", "Tax return", "", 2, 100),
	}}, quests, cache)

	res := s.InitialSync(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("a single bad event must not fail the batch: %+v", res)
	}
	if res.Created != 1 || res.Skipped != 1 {
		t.Fatalf("expected one created one skipped: %+v", res)
	}
}

func TestSyncProviderErrorIsResultValue(t *testing.T) {
	s := newSyncer(fakeProvider{granted: true, err: errors.New("content provider unavailable")}, newFakeQuests(), &fakeCache{})
	res := s.InitialSync(context.Background())
	if res.Status != StatusError || res.Message == "" {
		t.Fatalf("expected error result: %+v", res)
	}
}

func TestDiff(t *testing.T) {
	a := eventAt("A", "a", "", 1, 100)
	b := eventAt("B", "b", "", 2, 100)
	bNewer := eventAt("B", "b", "", 2, 300)
	c := eventAt("C", "c", "", 3, 100)
	d := Diff([]domain.CalendarEvent{a, b}, []domain.CalendarEvent{bNewer, c})
	if len(d.New) != 1 || d.New[0].ID != "C" {
		t.Fatalf("new: %+v", d.New)
	}
	if len(d.Deleted) != 1 || d.Deleted[0].ID != "A" {
		t.Fatalf("deleted: %+v", d.Deleted)
	}
	if len(d.Modified) != 1 || d.Modified[0].ID != "B" || d.Modified[0].LastModifiedMs != 300 {
		t.Fatalf("modified: %+v", d.Modified)
	}
}
