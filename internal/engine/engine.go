package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"questpilot/internal/calsync"
	"questpilot/internal/config"
	"questpilot/internal/domain"
	"questpilot/internal/events"
	"questpilot/internal/ledger"
	"questpilot/internal/repo"
	"questpilot/internal/schedule"
)

// Engine ties the schedule evaluator, the completion ledger and the calendar
// syncer together over one database.
type Engine struct {
	DB          *sql.DB
	Quests      repo.QuestRepo
	Completions repo.CompletionRepo
	Calendar    repo.CalendarEventRepo
	Players     repo.PlayerRepo
	Settings    repo.SettingsRepo
	EventLog    repo.EventRepo
	Events      events.Writer
	Ledger      ledger.Ledger
	Config      *config.Config
	Now         func() time.Time
	RandInt     func(n int) int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	completions := repo.CompletionRepo{DB: db}
	return Engine{
		DB:          db,
		Quests:      repo.QuestRepo{DB: db},
		Completions: completions,
		Calendar:    repo.CalendarEventRepo{DB: db},
		Players:     repo.PlayerRepo{DB: db},
		Settings:    repo.SettingsRepo{DB: db},
		EventLog:    repo.EventRepo{DB: db},
		Events:      events.Writer{DB: db},
		Ledger:      ledger.Ledger{Store: completions},
		Config:      cfg,
		Now:         time.Now,
		RandInt:     rand.Intn,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) today() time.Time {
	n := e.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func (e Engine) randInt(n int) int {
	if e.RandInt != nil {
		return e.RandInt(n)
	}
	return rand.Intn(n)
}

// QuestCreateOptions are parameters for creating a quest.
type QuestCreateOptions struct {
	ID              string
	Title           string
	Schedule        schedule.Schedule
	StartMinute     int
	EndMinute       int
	RewardMin       int
	RewardMax       int
	DurationMinutes int
	BreakMinutes    int
	ProofRequired   bool
	ProofPrompt     string
	AutoDestructOn  string
}

func (e Engine) CreateQuest(ctx context.Context, opts QuestCreateOptions) (domain.Quest, error) {
	if opts.Title == "" {
		return domain.Quest{}, errors.New("title is required")
	}
	if opts.StartMinute == 0 && opts.EndMinute == 0 {
		opts.EndMinute = schedule.MinutesPerDay
	}
	if err := schedule.ValidateWindow(opts.StartMinute, opts.EndMinute); err != nil {
		return domain.Quest{}, err
	}
	if opts.RewardMin < 0 || opts.RewardMax < opts.RewardMin {
		return domain.Quest{}, fmt.Errorf("invalid reward range %d..%d", opts.RewardMin, opts.RewardMax)
	}
	sj, err := opts.Schedule.ToJSON()
	if err != nil {
		return domain.Quest{}, err
	}
	if _, err := e.Quests.ByTitle(ctx, opts.Title); err == nil {
		return domain.Quest{}, fmt.Errorf("quest titled %q already exists", opts.Title)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Quest{}, err
	}
	var autoDestruct *string
	if opts.AutoDestructOn != "" {
		if _, err := schedule.ParseDay(opts.AutoDestructOn); err != nil {
			return domain.Quest{}, err
		}
		autoDestruct = &opts.AutoDestructOn
	}
	now := e.now()
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Title+"|"+now.UTC().Format(time.RFC3339))).String()
	}
	q := domain.Quest{
		ID:              id,
		Title:           opts.Title,
		ScheduleJSON:    sj,
		StartMinute:     opts.StartMinute,
		EndMinute:       opts.EndMinute,
		RewardMin:       opts.RewardMin,
		RewardMax:       opts.RewardMax,
		DurationMinutes: opts.DurationMinutes,
		BreakMinutes:    opts.BreakMinutes,
		ProofRequired:   opts.ProofRequired,
		ProofPrompt:     opts.ProofPrompt,
		CreatedOn:       schedule.FormatDay(now.UTC()),
		AutoDestructOn:  autoDestruct,
		LastUpdatedMs:   now.UnixMilli(),
	}
	if err := e.Quests.Insert(ctx, q); err != nil {
		return domain.Quest{}, fmt.Errorf("insert quest: %w", err)
	}
	if err := e.Events.Append(ctx, e.DB, "quest.create", q.ID, events.EventPayload{"title": q.Title}); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// StartQuest stamps the moment the user began working on the quest. A
// second start is a no-op; the original timestamp wins.
func (e Engine) StartQuest(ctx context.Context, id string) (domain.Quest, error) {
	q, err := e.Quests.ByID(ctx, id)
	if err != nil {
		return domain.Quest{}, err
	}
	if destroyed, err := e.effectivelyDestroyed(ctx, &q); err != nil {
		return domain.Quest{}, err
	} else if destroyed {
		return domain.Quest{}, fmt.Errorf("quest %s is destroyed", id)
	}
	if q.QuestStartedAtMs != 0 {
		return q, nil
	}
	q.QuestStartedAtMs = e.now().UnixMilli()
	q.LastUpdatedMs = q.QuestStartedAtMs
	q.Synced = false
	if err := e.Quests.Update(ctx, q); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// effectivelyDestroyed applies lazy destruction: a quest whose auto-destruct
// date has passed counts as destroyed even before the flag is persisted, and
// gets the flag persisted on the spot.
func (e Engine) effectivelyDestroyed(ctx context.Context, q *domain.Quest) (bool, error) {
	if q.IsDestroyed {
		return true, nil
	}
	if q.AutoDestructOn == nil {
		return false, nil
	}
	on, err := schedule.ParseDay(*q.AutoDestructOn)
	if err != nil {
		return false, err
	}
	if !schedule.NeedsDestruction(on, e.today()) {
		return false, nil
	}
	if err := e.Quests.MarkDestroyed(ctx, q.ID, e.now().UnixMilli()); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return true, err
	}
	q.IsDestroyed = true
	return true, nil
}

// CompleteQuest records today's success, draws the reward uniformly from the
// quest's range and applies it to the player. The outcome is returned as a
// value; nothing about the reward lives in shared state, so re-invoking
// after success fails cleanly instead of double-paying.
func (e Engine) CompleteQuest(ctx context.Context, id string) (domain.RewardOutcome, error) {
	q, err := e.Quests.ByID(ctx, id)
	if err != nil {
		return domain.RewardOutcome{}, err
	}
	if destroyed, err := e.effectivelyDestroyed(ctx, &q); err != nil {
		return domain.RewardOutcome{}, err
	} else if destroyed {
		return domain.RewardOutcome{}, fmt.Errorf("quest %s is destroyed", id)
	}
	sched, err := schedule.FromJSON(q.ScheduleJSON)
	if err != nil {
		return domain.RewardOutcome{}, err
	}
	now := e.now().UTC()
	today := e.today()
	if !schedule.IsActiveOn(sched, today) {
		return domain.RewardOutcome{}, fmt.Errorf("quest %q is not scheduled today", q.Title)
	}
	nowMin := schedule.MinuteOfDay(now)
	if !schedule.IsWithinTimeRange(q.StartMinute, q.EndMinute, nowMin) {
		if schedule.IsOverdueForToday(q.EndMinute, nowMin) {
			return domain.RewardOutcome{}, fmt.Errorf("quest %q window ended at %s", q.Title, schedule.MinuteLabel(q.EndMinute))
		}
		return domain.RewardOutcome{}, fmt.Errorf("quest %q opens at %s", q.Title, schedule.MinuteLabel(q.StartMinute))
	}
	day := schedule.FormatDay(today)
	if prev, err := e.Completions.ForDay(ctx, q.ID, day); err == nil && prev.Successful {
		return domain.RewardOutcome{}, fmt.Errorf("quest %q already completed today", q.Title)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.RewardOutcome{}, err
	}

	coins := q.RewardMin
	if span := q.RewardMax - q.RewardMin; span > 0 {
		coins += e.randInt(span + 1)
	}
	xpPerLevel := 100
	if e.Config != nil && e.Config.Progression.XPPerLevel > 0 {
		xpPerLevel = e.Config.Progression.XPPerLevel
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RewardOutcome{}, err
	}
	defer tx.Rollback()

	nowMs := now.UnixMilli()
	if _, err := tx.ExecContext(ctx, `INSERT INTO completions(quest_id,day,successful,completed_at_ms)
VALUES (?,?,1,?)
ON CONFLICT(quest_id,day) DO UPDATE SET successful=1, completed_at_ms=excluded.completed_at_ms`,
		q.ID, day, nowMs); err != nil {
		return domain.RewardOutcome{}, fmt.Errorf("record completion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE quests SET last_completed_on=?, last_completed_at_ms=?, synced=0, last_updated_ms=? WHERE id=?`,
		day, nowMs, nowMs, q.ID); err != nil {
		return domain.RewardOutcome{}, fmt.Errorf("update quest: %w", err)
	}
	player, err := e.Players.GetTx(ctx, tx)
	if err != nil {
		return domain.RewardOutcome{}, err
	}
	oldLevel := player.Level
	player.Coins += coins
	player.XP += coins
	player.Level = 1 + player.XP/xpPerLevel
	if err := e.Players.UpdateTx(ctx, tx, player); err != nil {
		return domain.RewardOutcome{}, err
	}
	outcome := domain.RewardOutcome{
		QuestID:     q.ID,
		CoinsEarned: coins,
		XPEarned:    coins,
		LeveledUp:   player.Level > oldLevel,
		NewLevel:    player.Level,
	}
	if err := e.Events.Append(ctx, tx, "quest.complete", q.ID, events.EventPayload{
		"coins": coins, "level": player.Level,
	}); err != nil {
		return domain.RewardOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RewardOutcome{}, err
	}
	return outcome, nil
}

// DestroyQuest permanently expires a quest. Completion history stays
// queryable.
func (e Engine) DestroyQuest(ctx context.Context, id string) error {
	if err := e.Quests.MarkDestroyed(ctx, id, e.now().UnixMilli()); err != nil {
		return err
	}
	return e.Events.Append(ctx, e.DB, "quest.destroy", id, nil)
}

// SweepDestroyed marks every quest whose auto-destruct date has arrived.
func (e Engine) SweepDestroyed(ctx context.Context) (int64, error) {
	n, err := e.Quests.SweepDestroyed(ctx, schedule.FormatDay(e.today()), e.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.Events.Append(ctx, e.DB, "quest.sweep", "", events.EventPayload{"destroyed": n}); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReconcileQuest backfills failure records up to today.
func (e Engine) ReconcileQuest(ctx context.Context, id string) (int, error) {
	q, err := e.Quests.ByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.Ledger.ReconcileFailures(ctx, q, e.today())
}

// QuestStats reconciles first, so gaps are recorded failures rather than
// unknowns, then computes the read-only aggregates.
func (e Engine) QuestStats(ctx context.Context, id string) (domain.QuestStats, error) {
	q, err := e.Quests.ByID(ctx, id)
	if err != nil {
		return domain.QuestStats{}, err
	}
	today := e.today()
	if !q.IsDestroyed {
		if _, err := e.Ledger.ReconcileFailures(ctx, q, today); err != nil {
			return domain.QuestStats{}, err
		}
	}
	sched, err := schedule.FromJSON(q.ScheduleJSON)
	if err != nil {
		return domain.QuestStats{}, err
	}
	records, err := e.Completions.ForQuest(ctx, q.ID)
	if err != nil {
		return domain.QuestStats{}, err
	}
	createdOn, err := schedule.ParseDay(q.CreatedOn)
	if err != nil {
		return domain.QuestStats{}, err
	}
	successes, failures := ledger.Counts(records)
	return domain.QuestStats{
		QuestID:          q.ID,
		CurrentStreak:    ledger.CurrentStreak(sched, records, createdOn, today),
		LongestStreak:    ledger.LongestStreak(sched, records),
		WeeklyAverage:    ledger.WeeklyAverage(records),
		Successes:        successes,
		Failures:         failures,
		TotalPerformable: schedule.CountActiveDaysBetween(sched, createdOn, today),
	}, nil
}

// NewSyncer builds the calendar syncer from the stored settings. Callers
// keep one syncer per process; its internal mutex enforces the single
// in-flight sync invariant.
func (e Engine) NewSyncer(provider calsync.Provider) *calsync.Syncer {
	settings := calsync.Settings{}
	if e.Config != nil {
		settings = calsync.Settings{
			Enabled:                e.Config.Calendar.Enabled,
			CalendarIDs:            e.Config.Calendar.CalendarIDs,
			DefaultReward:          e.Config.Defaults.Reward,
			DefaultDurationMinutes: e.Config.Defaults.DurationMinutes,
			DefaultBreakMinutes:    e.Config.Defaults.BreakMinutes,
		}
	}
	return &calsync.Syncer{
		Provider: provider,
		Quests:   e.Quests,
		Cache:    e.Calendar,
		Settings: settings,
		Now:      e.Now,
	}
}

// RunSync executes one sync pass and records it in the activity log.
func (e Engine) RunSync(ctx context.Context, s *calsync.Syncer, incremental bool) calsync.Result {
	var res calsync.Result
	mode := "initial"
	if incremental {
		mode = "incremental"
		res = s.IncrementalSync(ctx)
	} else {
		res = s.InitialSync(ctx)
	}
	_ = e.Events.Append(ctx, e.DB, "sync.run", "", events.EventPayload{
		"mode": mode, "status": string(res.Status),
		"created": res.Created, "updated": res.Updated, "deleted": res.Deleted, "skipped": res.Skipped,
	})
	return res
}

// Player returns the current coin/XP/level totals.
func (e Engine) Player(ctx context.Context) (domain.Player, error) {
	return e.Players.Get(ctx)
}
