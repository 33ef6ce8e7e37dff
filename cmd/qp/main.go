package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"questpilot/internal/app"
	"questpilot/internal/calsync"
	"questpilot/internal/config"
	"questpilot/internal/db"
	"questpilot/internal/engine"
	"questpilot/internal/migrate"
	"questpilot/internal/schedule"
	"questpilot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qp",
	Short: "QuestPilot CLI",
	Long: `QuestPilot turns recurring tasks into quests with coin rewards and streaks.
Core concepts:
- Workspace: your .questpilot directory holding the database; settings live in
  the DB and can be overridden by a questpilot.yml next to it.
- Quest: a task with a schedule (weekly days, a specific date, a day of the
  month, or an ordinal weekday like "last friday"), a daily time window and a
  coin reward range.
- Completion ledger: one success/failure record per active day; missed days are
  backfilled as failures when a quest is next evaluated.
- Auto-destruct: quests can expire on a date; expired quests vanish from lists
  the next time they are looked at.
- Calendar sync: events from an external calendar become one-shot quests;
  C/D/B/A[...] tokens in an event description set reward, duration, break and
  proof requirements.
- Event log: diary of changes, view with 'qp log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QUESTPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(playerCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func questCmd() *cobra.Command {
	q := &cobra.Command{Use: "quest", Short: "Manage quests"}
	q.AddCommand(questCreateCmd())
	q.AddCommand(questListCmd())
	q.AddCommand(questShowCmd())
	q.AddCommand(questStartCmd())
	q.AddCommand(questCompleteCmd())
	q.AddCommand(questDestroyCmd())
	return q
}

func questCreateCmd() *cobra.Command {
	var opts engine.QuestCreateOptions
	var kind string
	var weekdays []string
	var date string
	var dayOfMonth, ordinal int
	var weekday string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := buildSchedule(kind, weekdays, date, dayOfMonth, ordinal, weekday)
			if err != nil {
				return err
			}
			opts.Schedule = sched
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.CreateQuest(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "quest title")
	cmd.Flags().StringVar(&kind, "kind", "weekly", "schedule kind (weekly, date, monthly_date, monthly_weekday)")
	cmd.Flags().StringSliceVar(&weekdays, "weekdays", nil, "weekdays for weekly quests (mon,tue,...)")
	cmd.Flags().StringVar(&date, "date", "", "date for one-shot quests (yyyy-MM-dd)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day of month for monthly_date quests")
	cmd.Flags().IntVar(&ordinal, "ordinal", 0, "ordinal for monthly_weekday quests (1..5, -1 for last)")
	cmd.Flags().StringVar(&weekday, "weekday", "", "weekday for monthly_weekday quests")
	cmd.Flags().IntVar(&opts.StartMinute, "start-minute", 0, "window start minute of day")
	cmd.Flags().IntVar(&opts.EndMinute, "end-minute", 0, "window end minute of day (0 with start 0 means all day)")
	cmd.Flags().IntVar(&opts.RewardMin, "reward-min", 0, "minimum coin reward")
	cmd.Flags().IntVar(&opts.RewardMax, "reward-max", 0, "maximum coin reward")
	cmd.Flags().IntVar(&opts.DurationMinutes, "duration", 0, "focus duration in minutes")
	cmd.Flags().IntVar(&opts.BreakMinutes, "break", 0, "break duration in minutes")
	cmd.Flags().BoolVar(&opts.ProofRequired, "proof", false, "require completion proof")
	cmd.Flags().StringVar(&opts.ProofPrompt, "proof-prompt", "", "prompt shown when proof is required")
	cmd.Flags().StringVar(&opts.AutoDestructOn, "auto-destruct", "", "auto-destruct date (yyyy-MM-dd)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func questListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quests with today's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if all {
					quests, err := e.Quests.List(ctx, true)
					if err != nil {
						return err
					}
					return printJSONOrTable(quests)
				}
				items, err := e.ListStatuses(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Window", "Reward", "Today", "Open"})
				for _, st := range items {
					q := st.Quest
					window := "all day"
					if !schedule.IsAllDay(q.StartMinute, q.EndMinute) {
						window = fmt.Sprintf("%s - %s", schedule.MinuteLabel(q.StartMinute), schedule.MinuteLabel(q.EndMinute))
					}
					today := ""
					if st.ActiveToday {
						today = "active"
						if st.OverdueToday {
							today = "overdue"
						}
					}
					open := ""
					if st.WithinWindow {
						open = "yes"
					}
					tw.AppendRow(table.Row{q.ID, q.Title, window, fmt.Sprintf("%d-%d", q.RewardMin, q.RewardMax), today, open})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include destroyed quests")
	return cmd
}

func questShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a quest with today's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.Quests.ByID(ctx, args[0])
				if err != nil {
					return err
				}
				st, err := e.Status(ctx, q)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func questStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Mark a quest started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.StartQuest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	return cmd
}

func questCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a quest for today and collect the reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.CompleteQuest(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("+%d coins, +%d xp\n", out.CoinsEarned, out.XPEarned)
				if out.LeveledUp {
					fmt.Printf("Level up! You are now level %d.\n", out.NewLevel)
				}
				return nil
			})
		},
	}
	return cmd
}

func questDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy <id>",
		Short: "Destroy a quest (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DestroyQuest(ctx, args[0])
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Show quest statistics (streaks, averages, totals)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.QuestStats(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Current streak", stats.CurrentStreak})
				tw.AppendRow(table.Row{"Longest streak", stats.LongestStreak})
				tw.AppendRow(table.Row{"Weekly average", fmt.Sprintf("%.2f", stats.WeeklyAverage)})
				tw.AppendRow(table.Row{"Successes", stats.Successes})
				tw.AppendRow(table.Row{"Failures", stats.Failures})
				tw.AppendRow(table.Row{"Performable days", stats.TotalPerformable})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func playerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Show coin, XP and level totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Player(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func syncCmd() *cobra.Command {
	sync := &cobra.Command{Use: "sync", Short: "Sync quests from an external calendar"}
	sync.AddCommand(syncRunCmd("initial", "Import calendar events as quests", false))
	sync.AddCommand(syncRunCmd("incremental", "Apply calendar changes since the last sync", true))
	return sync
}

func syncRunCmd(use, short string, incremental bool) *cobra.Command {
	var eventsFile string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventsFile == "" {
				return fmt.Errorf("--events-file required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s := e.NewSyncer(calsync.FileProvider{Path: eventsFile})
				res := e.RunSync(ctx, s, incremental)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("sync %s: %s (created %d, updated %d, deleted %d, skipped %d)\n",
					use, res.Status, res.Created, res.Updated, res.Deleted, res.Skipped)
				if res.Message != "" {
					fmt.Println(res.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventsFile, "events-file", "", "path to a JSON calendar export")
	_ = cmd.MarkFlagRequired("events-file")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Backfill missed days as failures and sweep expired quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				swept, err := e.SweepDestroyed(ctx)
				if err != nil {
					return err
				}
				quests, err := e.Quests.List(ctx, false)
				if err != nil {
					return err
				}
				backfilled := 0
				for _, q := range quests {
					n, err := e.Ledger.ReconcileFailures(ctx, q, todayOf(e))
					if err != nil {
						return err
					}
					backfilled += n
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"swept": swept, "backfilled": backfilled})
				}
				fmt.Printf("swept %d expired quests, backfilled %d missed days\n", swept, backfilled)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Activity log"}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, questID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.EventLog.Latest(ctx, n, evtType, questID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&questID, "quest-id", "", "quest id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace settings"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import settings from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Settings.Upsert(ctx, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(filePath); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, eventsFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			cfg, err := app.ResolveSettings(cmd.Context(), workspace, e.Settings)
			if err != nil {
				return err
			}
			e.Config = cfg
			srvCfg := server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: os.Getenv("QUESTPILOT_JWT_SECRET")},
			}
			if eventsFile != "" {
				srvCfg.Provider = calsync.FileProvider{Path: eventsFile}
			}
			handler, err := server.New(srvCfg)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving QuestPilot API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&eventsFile, "events-file", "", "JSON calendar export backing the sync endpoints")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, nil)
	cfg, err := app.ResolveSettings(ctx, workspace, e.Settings)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e)
}

func todayOf(e engine.Engine) time.Time {
	n := time.Now().UTC()
	if e.Now != nil {
		n = e.Now().UTC()
	}
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func buildSchedule(kind string, weekdays []string, date string, dayOfMonth, ordinal int, weekday string) (schedule.Schedule, error) {
	s := schedule.Schedule{Kind: schedule.Kind(kind)}
	switch s.Kind {
	case schedule.KindWeekly:
		if len(weekdays) == 0 {
			return s, fmt.Errorf("--weekdays required for weekly quests")
		}
		for _, w := range weekdays {
			d, err := parseWeekday(w)
			if err != nil {
				return s, err
			}
			s.Weekdays = append(s.Weekdays, d)
		}
	case schedule.KindSpecificDate:
		if date == "" {
			return s, fmt.Errorf("--date required for date quests")
		}
		s.Date = date
	case schedule.KindMonthlyDate:
		s.DayOfMonth = dayOfMonth
	case schedule.KindMonthlyWeekday:
		d, err := parseWeekday(weekday)
		if err != nil {
			return s, err
		}
		s.Ordinal = ordinal
		s.Weekday = d
	default:
		return s, fmt.Errorf("unknown schedule kind %q", kind)
	}
	return s, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
