package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gymtrack/internal/bootstrap"
	activityinadapter "gymtrack/internal/modules/activity/adapter/in"
	"gymtrack/internal/modules/activity/dto"
	"gymtrack/internal/platform/config"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	dataDir    string
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "gymtrack",
		Short:         "Track workout sessions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data", defaultDataDir(), "data directory (database, journal, config.yaml)")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data>/config.yaml)")

	root.AddCommand(newTrackCmd(flags))
	root.AddCommand(newRecoverCmd(flags))
	root.AddCommand(newSessionCmd(flags))
	root.AddCommand(newEstimateCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newMigrateCmd(flags))
	return root
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gymtrack"
	}
	return filepath.Join(home, ".gymtrack")
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	return config.Load(flags.dataDir, flags.configPath)
}

func loadApp(cmd *cobra.Command, flags *globalFlags) (*bootstrap.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, logger, cmd.InOrStdin())
}

type trackFlags struct {
	student      string
	activityType string
	mode         string
	source       string
	weightKg     float64
	tui          bool
	resolve      string
	statusEvery  time.Duration
	extras       dto.FinishInput
}

func newTrackCmd(flags *globalFlags) *cobra.Command {
	tf := &trackFlags{}
	track := &cobra.Command{
		Use:   "track --student <id> --type <activity>",
		Short: "Start a session and track it until finished",
		Long: `Start a session and keep it live until it is finished or cancelled.

Without --tui, type commands on stdin: p (pause), r (resume), s (status),
sync, f (finish), c (cancel). Ctrl-C finishes the session. When the position
source reads stdin, only Ctrl-C is available.

Position sources: gpx:<file>, nmea:<device>, jsonl:<file>, stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(tf.student) == "" || strings.TrimSpace(tf.activityType) == "" {
				return fmt.Errorf("--student and --type are required")
			}
			app, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			return runTrack(cmd, app, tf)
		},
	}
	track.Flags().StringVar(&tf.student, "student", "", "student id")
	track.Flags().StringVar(&tf.activityType, "type", "", "activity type: walk|run|bike|hike|treadmill|stationary_bike|elliptical|rowing|stair_climber|swimming|yoga")
	track.Flags().StringVar(&tf.mode, "mode", "", "tracking mode: gps|manual (default gps outdoors, manual indoors)")
	track.Flags().StringVar(&tf.source, "source", "", "position source for gps mode")
	track.Flags().Float64Var(&tf.weightKg, "weight", 0, "body weight in kg for calorie estimates")
	track.Flags().BoolVar(&tf.tui, "tui", false, "show the live terminal screen")
	track.Flags().StringVar(&tf.resolve, "resolve", "", "resolve a session left open by an earlier run first: finish|discard")
	track.Flags().DurationVar(&tf.statusEvery, "status-every", 30*time.Second, "print live stats at this interval (0 disables)")
	track.Flags().Float64Var(&tf.extras.ManualDistanceMeters, "distance", 0, "manual distance in meters, recorded at finish")
	track.Flags().IntVar(&tf.extras.Laps, "laps", 0, "laps, recorded at finish")
	track.Flags().IntVar(&tf.extras.ResistanceLevel, "resistance", 0, "resistance level, recorded at finish")
	track.Flags().Float64Var(&tf.extras.InclinePercent, "incline", 0, "incline percent, recorded at finish")
	track.Flags().IntVar(&tf.extras.Floors, "floors", 0, "floors climbed, recorded at finish")
	return track
}

func runTrack(cmd *cobra.Command, app *bootstrap.App, tf *trackFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	h := app.ActivityCLI
	out := cmd.OutOrStdout()

	if tf.resolve != "" {
		pending, err := h.CheckRecovery(ctx, tf.student)
		if err != nil {
			return err
		}
		if pending.Found {
			res, err := h.ResolveRecovery(ctx, tf.student, pending.SessionID, tf.resolve, tf.weightKg)
			if err != nil {
				return err
			}
			printResolution(out, res)
		}
	}

	snap, err := h.Start(ctx, tf.student, tf.activityType, tf.mode, tf.source, tf.weightKg)
	if errors.Is(err, apperrors.ErrRecoveryRequired) {
		return fmt.Errorf("%w\nresolve it with: gymtrack recover --student %s --resolve finish|discard", err, tf.student)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "session started: %s %s (%s) at %s\n", snap.SessionID, snap.ActivityType, snap.Mode, snap.StartedAt.Local().Format(time.Kitchen))

	if tf.tui {
		return runTrackTUI(ctx, out, app)
	}
	var control io.Reader
	if !readsStdin(tf.source) {
		control = cmd.InOrStdin()
	}
	return runConsole(ctx, out, h, control, tf)
}

func readsStdin(source string) bool {
	switch source {
	case "stdin", "-", "jsonl:-", "jsonl:stdin":
		return true
	}
	return false
}

func runTrackTUI(ctx context.Context, out io.Writer, app *bootstrap.App) error {
	model, err := bootstrap.RunTUI(app)
	if err != nil {
		return err
	}
	if res, ok := model.Finished(); ok {
		printFinish(out, res)
		return nil
	}
	if res, ok := model.Cancelled(); ok {
		printCancel(out, res)
		return nil
	}
	// Detached: push what we have so a later recover sees as much of the session as possible.
	h := app.ActivityCLI
	snap := h.Snapshot(ctx)
	if flushed, err := h.FlushNow(ctx); err != nil {
		_, _ = fmt.Fprintf(out, "final sync failed, %d points not saved: %v\n", snap.PendingPoints, err)
	} else if flushed.Sent > 0 {
		_, _ = fmt.Fprintf(out, "synced %d points\n", flushed.Sent)
	}
	_, _ = fmt.Fprintf(out, "detached from %s; it stays open until resolved with `gymtrack recover`\n", snap.SessionID)
	return nil
}

// runConsole drives a started session from stdin commands and signals until it ends.
func runConsole(ctx context.Context, out io.Writer, h activityinadapter.CLIHandler, control io.Reader, tf *trackFlags) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Calls made after a signal must not inherit its cancellation.
	ctx = context.WithoutCancel(ctx)

	var lines chan string
	if control != nil {
		lines = make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(control)
			for scanner.Scan() {
				select {
				case lines <- strings.TrimSpace(scanner.Text()):
				case <-sigCtx.Done():
					return
				}
			}
		}()
	}
	var status <-chan time.Time
	if tf.statusEvery > 0 {
		ticker := time.NewTicker(tf.statusEvery)
		defer ticker.Stop()
		status = ticker.C
	}

	finish := func() error {
		res, err := h.Finish(ctx, tf.extras)
		if err != nil {
			return err
		}
		printFinish(out, res)
		return nil
	}

	for {
		select {
		case <-sigCtx.Done():
			return finish()
		case <-status:
			printSnapshot(out, h.Snapshot(ctx))
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch line {
			case "p", "pause":
				snap, err := h.Pause(ctx)
				reportTransition(out, "paused", snap, err)
			case "r", "resume":
				snap, err := h.Resume(ctx)
				reportTransition(out, "resumed", snap, err)
			case "", "s", "status":
				printSnapshot(out, h.Snapshot(ctx))
			case "sync":
				res, err := h.FlushNow(ctx)
				if err != nil {
					_, _ = fmt.Fprintf(out, "sync failed: %v\n", err)
					continue
				}
				_, _ = fmt.Fprintf(out, "synced %d points, %d pending\n", res.Sent, res.Pending)
			case "f", "finish":
				if err := finish(); err != nil {
					// A failed finish leaves the session running; let the user retry.
					_, _ = fmt.Fprintf(out, "finish failed: %v\n", err)
					continue
				}
				return nil
			case "c", "cancel":
				res, err := h.Cancel(ctx)
				if err != nil {
					_, _ = fmt.Fprintf(out, "cancel failed: %v\n", err)
					continue
				}
				printCancel(out, res)
				return nil
			default:
				_, _ = fmt.Fprintf(out, "unknown command %q (p, r, s, sync, f, c)\n", line)
			}
		}
	}
}

func reportTransition(out io.Writer, verb string, snap dto.SnapshotOutput, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(out, "not %s: %v\n", verb, err)
		return
	}
	_, _ = fmt.Fprintf(out, "%s at %s\n", verb, formatSeconds(snap.ElapsedSeconds))
}

func printSnapshot(out io.Writer, s dto.SnapshotOutput) {
	_, _ = fmt.Fprintf(out, "[%s] %s  %.2f km  pace %s  avg %.1f km/h  max %.1f km/h  %.0f kcal  points=%d pending=%d\n",
		s.Status, formatSeconds(s.ElapsedSeconds), s.DistanceMeters/1000, s.Pace, s.AvgSpeedKmh, s.MaxSpeedKmh, s.CaloriesBurned, s.PointCount, s.PendingPoints)
	if s.LastFlushError != "" {
		_, _ = fmt.Fprintf(out, "  sync failing (%d in a row): %s\n", s.FlushFailures, s.LastFlushError)
	}
}

func printFinish(out io.Writer, res dto.FinishOutput) {
	_, _ = fmt.Fprintf(out, "session finished: %s\n", res.SessionID)
	_, _ = fmt.Fprintf(out, "time=%s distance=%.2fkm pace=%s avg=%.1fkm/h max=%.1fkm/h calories=%.0f points=%d\n",
		formatSeconds(res.ElapsedSeconds), res.DistanceMeters/1000, res.Pace, res.AvgSpeedKmh, res.MaxSpeedKmh, res.CaloriesBurned, res.PointCount)
	if !res.Confirmed {
		_, _ = fmt.Fprintln(out, "backend did not confirm the finish; it will show up under `gymtrack recover`")
	}
	if res.UnsyncedPoints > 0 {
		_, _ = fmt.Fprintf(out, "%d points were not synced\n", res.UnsyncedPoints)
	}
	if res.JournalPath != "" {
		_, _ = fmt.Fprintf(out, "journal=%s\n", res.JournalPath)
	}
}

func printCancel(out io.Writer, res dto.CancelOutput) {
	_, _ = fmt.Fprintf(out, "session cancelled: %s backend_confirmed=%t\n", res.SessionID, res.BackendConfirmed)
}

func printResolution(out io.Writer, res dto.ResolveRecoveryOutput) {
	_, _ = fmt.Fprintf(out, "recovered %s: %s time=%s distance=%.2fkm calories=%.0f\n",
		res.SessionID, res.Resolution, formatSeconds(res.ElapsedSeconds), res.DistanceMeters/1000, res.CaloriesBurned)
}

func formatSeconds(s float64) string {
	return (time.Duration(s) * time.Second).String()
}

func newRecoverCmd(flags *globalFlags) *cobra.Command {
	var student, resolve string
	var weightKg float64
	recoverCmd := &cobra.Command{
		Use:   "recover --student <id>",
		Short: "Show or resolve a session left open by an earlier run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(student) == "" {
				return fmt.Errorf("--student is required")
			}
			app, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := context.Background()
			pending, err := app.ActivityCLI.CheckRecovery(ctx, student)
			if err != nil {
				return err
			}
			if !pending.Found {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no in-progress session")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "in progress: %s %s status=%s started=%s distance=%.2fkm points=%d\n",
				pending.SessionID, pending.ActivityType, pending.Status, pending.StartedAt.Local().Format(time.RFC3339), pending.DistanceMeters/1000, pending.PointCount)
			if resolve == "" {
				return nil
			}
			res, err := app.ActivityCLI.ResolveRecovery(ctx, student, pending.SessionID, resolve, weightKg)
			if err != nil {
				return err
			}
			printResolution(cmd.OutOrStdout(), res)
			return nil
		},
	}
	recoverCmd.Flags().StringVar(&student, "student", "", "student id")
	recoverCmd.Flags().StringVar(&resolve, "resolve", "", "finish|discard")
	recoverCmd.Flags().Float64Var(&weightKg, "weight", 0, "body weight in kg for calorie estimates")
	return recoverCmd
}

func newSessionCmd(flags *globalFlags) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Stored session queries"}

	var points bool
	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			d, err := app.ActivityCLI.Detail(context.Background(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "id: %s\nstudent: %s\ntype: %s\nmode: %s\nstatus: %s\nstarted: %s\n", d.SessionID, d.StudentID, d.ActivityType, d.Mode, d.Status, d.StartedAt.Local().Format(time.RFC3339))
			if !d.FinishedAt.IsZero() {
				_, _ = fmt.Fprintf(w, "finished: %s\n", d.FinishedAt.Local().Format(time.RFC3339))
			}
			_, _ = fmt.Fprintf(w, "time: %s\ndistance: %.2f km\npace: %s /km\navg speed: %.1f km/h\nmax speed: %.1f km/h\ncalories: %.0f\npoints: %d\n",
				formatSeconds(d.ElapsedSeconds), d.DistanceMeters/1000, d.Pace, d.AvgSpeedKmh, d.MaxSpeedKmh, d.CaloriesBurned, len(d.Points))
			if points {
				for _, p := range d.Points {
					speed := "-"
					if p.SpeedKmh != nil {
						speed = fmt.Sprintf("%.1f", *p.SpeedKmh)
					}
					_, _ = fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%s\n", p.Timestamp.Format(time.RFC3339), p.Latitude, p.Longitude, speed)
				}
			}
			return nil
		},
	}
	show.Flags().BoolVar(&points, "points", false, "list track points")

	export := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a stored session to the markdown journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.ActivityCLI.Export(context.Background(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", out.SessionID, out.Path)
			return nil
		},
	}

	session.AddCommand(show, export)
	return session
}

func newEstimateCmd(flags *globalFlags) *cobra.Command {
	var activityType string
	var minutes, weightKg float64
	estimate := &cobra.Command{
		Use:   "estimate --type <activity> --minutes <n>",
		Short: "Estimate calories for an activity without tracking it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.ActivityCLI.Estimate(context.Background(), activityType, minutes, weightKg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: MET %.1f, %.0f kg, %.0f min -> %.0f kcal\n", out.ActivityType, out.MET, out.WeightKg, minutes, out.CaloriesBurned)
			return nil
		},
	}
	estimate.Flags().StringVar(&activityType, "type", "", "activity type")
	estimate.Flags().Float64Var(&minutes, "minutes", 0, "duration in minutes")
	estimate.Flags().Float64Var(&weightKg, "weight", 0, "body weight in kg")
	return estimate
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local session database to other gymtrack clients over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.Serve(ctx, cfg, logger)
		},
	}
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	migrate := &cobra.Command{Use: "migrate", Short: "Local database schema"}
	run := func(apply bool) func(cmd *cobra.Command, _ []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			version, dirty, err := bootstrap.Migrate(cfg, logger, apply)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema version=%d dirty=%t db=%s\n", version, dirty, cfg.DBPath)
			return nil
		}
	}
	migrate.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(true)},
		&cobra.Command{Use: "version", Short: "Show the applied schema version", RunE: run(false)},
	)
	return migrate
}
