package calsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"questpilot/internal/domain"
	"questpilot/internal/repo"
	"questpilot/internal/schedule"
)

// WindowDays is the size of the sync horizon: events are fetched from the
// start of today up to (but not including) today + WindowDays.
const WindowDays = 30

// Provider is the read-only calendar source. The external calendar is the
// source of truth; the differ never writes to it.
type Provider interface {
	HasPermission(ctx context.Context) bool
	EventsInRange(ctx context.Context, startMs, endMs int64, calendarIDs []string) ([]domain.CalendarEvent, error)
}

// QuestStore is the subset of quest persistence the syncer needs.
// Satisfied by repo.QuestRepo.
type QuestStore interface {
	ByTitle(ctx context.Context, title string) (domain.Quest, error)
	ByCalendarEventID(ctx context.Context, eventID string) (domain.Quest, error)
	Insert(ctx context.Context, q domain.Quest) error
	Update(ctx context.Context, q domain.Quest) error
	Delete(ctx context.Context, id string) error
}

// EventCache stores calendar event snapshots for diffing. Satisfied by
// repo.CalendarEventRepo.
type EventCache interface {
	InRange(ctx context.Context, startMs, endMs int64) ([]domain.CalendarEvent, error)
	Insert(ctx context.Context, e domain.CalendarEvent) error
	Update(ctx context.Context, e domain.CalendarEvent) error
	MarkDeleted(ctx context.Context, id string) error
}

// Settings control the sync, read from the stored config.
type Settings struct {
	Enabled                bool
	CalendarIDs            []string
	DefaultReward          int
	DefaultDurationMinutes int
	DefaultBreakMinutes    int
}

type Status string

const (
	StatusOK               Status = "ok"
	StatusPermissionDenied Status = "permission_denied"
	StatusError            Status = "error"
)

// Result reports the outcome of one sync run. A failing event is skipped and
// counted; it never fails the batch.
type Result struct {
	Status  Status `json:"status" enum:"ok,permission_denied,error"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Skipped int    `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}

// Syncer reconciles external calendar events with locally stored quests.
// A mutex serializes the entry points: at most one sync is in flight.
type Syncer struct {
	Provider Provider
	Quests   QuestStore
	Cache    EventCache
	Settings Settings
	Now      func() time.Time

	mu sync.Mutex
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) window() (int64, int64) {
	n := s.now().UTC()
	start := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return start.UnixMilli(), start.AddDate(0, 0, WindowDays).UnixMilli()
}

func (s *Syncer) guard(ctx context.Context) (Result, bool) {
	if !s.Settings.Enabled {
		return Result{Status: StatusOK, Message: "calendar sync disabled"}, false
	}
	if !s.Provider.HasPermission(ctx) {
		return Result{Status: StatusPermissionDenied, Message: "calendar read access not granted"}, false
	}
	return Result{}, true
}

// InitialSync imports every event in the window that has no quest of the
// same derived title yet. Retried runs are safe: the title check makes each
// event's quest creation idempotent.
func (s *Syncer) InitialSync(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.guard(ctx); !ok {
		return res
	}
	startMs, endMs := s.window()
	events, err := s.Provider.EventsInRange(ctx, startMs, endMs, s.Settings.CalendarIDs)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("fetch calendar events: %v", err)}
	}
	res := Result{Status: StatusOK}
	for _, ev := range events {
		created, err := s.importEvent(ctx, ev)
		if err != nil {
			res.Skipped++
			continue
		}
		if created {
			res.Created++
		}
	}
	return res
}

// IncrementalSync re-fetches the window, diffs it against the stored
// snapshots by event id, and applies the create/update/delete sets.
func (s *Syncer) IncrementalSync(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.guard(ctx); !ok {
		return res
	}
	startMs, endMs := s.window()
	current, err := s.Provider.EventsInRange(ctx, startMs, endMs, s.Settings.CalendarIDs)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("fetch calendar events: %v", err)}
	}
	stored, err := s.Cache.InRange(ctx, startMs, endMs)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("load cached events: %v", err)}
	}
	diff := Diff(stored, current)

	res := Result{Status: StatusOK}
	for _, ev := range diff.New {
		created, err := s.importEvent(ctx, ev)
		if err != nil {
			res.Skipped++
			continue
		}
		if created {
			res.Created++
		}
	}
	for _, ev := range diff.Deleted {
		if err := s.removeEvent(ctx, ev); err != nil {
			res.Skipped++
			continue
		}
		res.Deleted++
	}
	for _, ev := range diff.Modified {
		updated, err := s.updateEvent(ctx, ev)
		if err != nil || !updated {
			res.Skipped++
			continue
		}
		res.Updated++
	}
	return res
}

// importEvent creates the snapshot and a specific-date quest for one event.
// Returns false without error when a quest of the same title already exists.
func (s *Syncer) importEvent(ctx context.Context, ev domain.CalendarEvent) (bool, error) {
	title := derivedTitle(ev)
	if title == "" {
		return false, errors.New("event has no usable title")
	}
	_, err := s.Quests.ByTitle(ctx, title)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	q, err := s.questFromEvent(ev, title)
	if err != nil {
		return false, err
	}
	if err := s.Cache.Insert(ctx, ev); err != nil {
		return false, err
	}
	if err := s.Quests.Insert(ctx, q); err != nil {
		return false, err
	}
	return true, nil
}

// removeEvent soft-deletes the snapshot and deletes the linked quest,
// resolved by calendar event id, never by title.
func (s *Syncer) removeEvent(ctx context.Context, ev domain.CalendarEvent) error {
	if err := s.Cache.MarkDeleted(ctx, ev.ID); err != nil {
		return err
	}
	q, err := s.Quests.ByCalendarEventID(ctx, ev.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.Quests.Delete(ctx, q.ID)
}

// updateEvent refreshes the snapshot and rewrites the linked quest's
// reward/duration/proof/auto-destruct fields in place.
func (s *Syncer) updateEvent(ctx context.Context, ev domain.CalendarEvent) (bool, error) {
	if err := s.Cache.Update(ctx, ev); err != nil {
		return false, err
	}
	q, err := s.Quests.ByCalendarEventID(ctx, ev.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	meta := ParseMetadata(ev.Description, s.defaults())
	eventDay := schedule.FormatDay(time.UnixMilli(ev.StartMs).UTC())
	sj, err := schedule.Schedule{Kind: schedule.KindSpecificDate, Date: eventDay}.ToJSON()
	if err != nil {
		return false, err
	}
	q.Title = derivedTitle(ev)
	q.ScheduleJSON = sj
	q.StartMinute, q.EndMinute = eventWindow(ev)
	q.RewardMin, q.RewardMax = meta.RewardMin, meta.RewardMax
	q.DurationMinutes = meta.DurationMinutes
	q.BreakMinutes = meta.BreakMinutes
	q.ProofRequired = meta.ProofRequired
	q.ProofPrompt = meta.ProofPrompt
	q.AutoDestructOn = &eventDay
	q.Synced = false
	q.LastUpdatedMs = s.now().UnixMilli()
	if err := s.Quests.Update(ctx, q); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Syncer) questFromEvent(ev domain.CalendarEvent, title string) (domain.Quest, error) {
	meta := ParseMetadata(ev.Description, s.defaults())
	now := s.now()
	eventDay := schedule.FormatDay(time.UnixMilli(ev.StartMs).UTC())
	sj, err := schedule.Schedule{Kind: schedule.KindSpecificDate, Date: eventDay}.ToJSON()
	if err != nil {
		return domain.Quest{}, err
	}
	startMin, endMin := eventWindow(ev)
	eventID := ev.ID
	return domain.Quest{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte("calendar-event|"+ev.ID)).String(),
		Title:           title,
		ScheduleJSON:    sj,
		StartMinute:     startMin,
		EndMinute:       endMin,
		RewardMin:       meta.RewardMin,
		RewardMax:       meta.RewardMax,
		DurationMinutes: meta.DurationMinutes,
		BreakMinutes:    meta.BreakMinutes,
		ProofRequired:   meta.ProofRequired,
		ProofPrompt:     meta.ProofPrompt,
		CreatedOn:       schedule.FormatDay(now.UTC()),
		AutoDestructOn:  &eventDay,
		Synced:          false,
		LastUpdatedMs:   now.UnixMilli(),
		CalendarEventID: &eventID,
	}, nil
}

func (s *Syncer) defaults() Defaults {
	return Defaults{
		Reward:          s.Settings.DefaultReward,
		DurationMinutes: s.Settings.DefaultDurationMinutes,
		BreakMinutes:    s.Settings.DefaultBreakMinutes,
	}
}

// eventWindow maps an event's start/end clock times onto a quest time
// window. All-day and midnight-crossing events become all-day windows.
func eventWindow(ev domain.CalendarEvent) (int, int) {
	if ev.AllDay {
		return 0, schedule.MinutesPerDay
	}
	start := time.UnixMilli(ev.StartMs).UTC()
	end := time.UnixMilli(ev.EndMs).UTC()
	startMin := schedule.MinuteOfDay(start)
	endMin := schedule.MinuteOfDay(end)
	if schedule.ValidateWindow(startMin, endMin) != nil {
		return 0, schedule.MinutesPerDay
	}
	return startMin, endMin
}

func derivedTitle(ev domain.CalendarEvent) string {
	return strings.TrimSpace(ev.Title)
}
