package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	tea "github.com/charmbracelet/bubbletea"
	"google.golang.org/grpc"

	activityinadapter "gymtrack/internal/modules/activity/adapter/in"
	activityoutadapter "gymtrack/internal/modules/activity/adapter/out"
	"gymtrack/internal/modules/activity/adapter/out/rpc"
	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	activityservice "gymtrack/internal/modules/activity/service"
	activityusecase "gymtrack/internal/modules/activity/usecase"
	"gymtrack/internal/platform/clock"
	"gymtrack/internal/platform/config"
	"gymtrack/internal/platform/id"
	"gymtrack/internal/platform/logging"
	uiapp "gymtrack/internal/ui/app"
)

type App struct {
	ActivityCLI activityinadapter.CLIHandler
	// Remote is true when sessions live on a gRPC backend instead of the local database.
	Remote bool

	closers []io.Closer
}

// New wires the activity module. stdin feeds "stdin" position sources.
func New(cfg config.Config, logger *slog.Logger, stdin io.Reader) (*App, error) {
	logger = logging.OrDiscard(logger)
	clk := clock.SystemClock{}
	filter := domain.NoiseFilter{MinMovementMeters: cfg.Tracking.MinMovementMeters}

	app := &App{}
	backend, closer, remote, err := newBackend(cfg, clk, filter, logger)
	if err != nil {
		return nil, err
	}
	app.Remote = remote
	app.closers = append(app.closers, closer)

	recovery := activityservice.NewRecoveryManager(backend, clk, cfg.Recovery.MaxDuration, cfg.Backend.Timeout, logger)
	ctrl := activityservice.NewController(backend, clk, recovery, activityservice.Options{
		FlushInterval:     cfg.Tracking.FlushInterval,
		BackendTimeout:    cfg.Backend.Timeout,
		MaxBatchPoints:    cfg.Tracking.MaxBatchPoints,
		ReferenceWeightKg: cfg.Tracking.ReferenceWeightKg,
		Filter:            filter,
		NewTicker:         clock.NewSystemTicker,
		Logger:            logger,
	})
	sources := activityoutadapter.SourceResolver{
		GPXSpeedup: cfg.Sources.GPXSpeedup,
		NMEABaud:   cfg.Sources.NMEABaud,
		Stdin:      stdin,
		Clock:      clk,
		Log:        logger,
	}
	journal := activityoutadapter.NewMarkdownJournal(cfg.DataDir, filter)
	uc := activityusecase.NewInteractor(ctrl, backend, sources, journal, cfg.Tracking.ReferenceWeightKg, logger)

	app.ActivityCLI = activityinadapter.NewCLIHandler(uc)
	return app, nil
}

func newBackend(cfg config.Config, clk clock.Clock, filter domain.NoiseFilter, logger *slog.Logger) (activityout.Backend, io.Closer, bool, error) {
	if cfg.Backend.Address != "" {
		b, err := activityoutadapter.DialGRPCBackend(cfg.Backend.Address)
		if err != nil {
			return nil, nil, false, fmt.Errorf("new grpc backend: %w", err)
		}
		logger.Debug("using remote backend", "address", cfg.Backend.Address)
		return b, b, true, nil
	}
	b, err := activityoutadapter.NewSQLiteBackend(cfg.DBPath, clk, id.UUID{}, filter, logger)
	if err != nil {
		return nil, nil, false, fmt.Errorf("new sqlite backend: %w", err)
	}
	return b, b, false, nil
}

// Close releases the backend connection. The app must not be used afterwards.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve exposes the local SQLite backend over gRPC on cfg.Server.Listen until ctx is done.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	backend, err := activityoutadapter.NewSQLiteBackend(cfg.DBPath, clock.SystemClock{}, id.UUID{}, domain.NoiseFilter{MinMovementMeters: cfg.Tracking.MinMovementMeters}, logger)
	if err != nil {
		return fmt.Errorf("new sqlite backend: %w", err)
	}
	defer backend.Close()

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(logInterceptor(logger)))
	rpc.RegisterSessionBackendServer(server, backend)

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()
	logger.Info("session backend listening", "address", lis.Addr().String(), "db", cfg.DBPath)
	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func logInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed", "method", info.FullMethod, "error", err)
		} else {
			logger.Debug("rpc", "method", info.FullMethod)
		}
		return resp, err
	}
}

// Migrate applies pending migrations to the local database and returns the resulting version.
func Migrate(cfg config.Config, logger *slog.Logger, apply bool) (uint, bool, error) {
	db, err := activityoutadapter.OpenSQLite(cfg.DBPath)
	if err != nil {
		return 0, false, err
	}
	defer db.Close()
	if apply {
		if err := activityoutadapter.MigrateUp(db, logger); err != nil {
			return 0, false, err
		}
	}
	return activityoutadapter.MigrateVersion(db, logger)
}

// RunTUI shows the live session screen until the session ends or the user detaches.
func RunTUI(app *App) (uiapp.Model, error) {
	program := tea.NewProgram(uiapp.NewModel(app.ActivityCLI), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return uiapp.Model{}, err
	}
	m, _ := final.(uiapp.Model)
	return m, nil
}
