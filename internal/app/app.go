package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"redtrack/internal/config"
	"redtrack/internal/media"
	"redtrack/internal/model"
	"redtrack/internal/reddit"
	"redtrack/internal/server"
	"redtrack/internal/store"
	"redtrack/internal/tracker"
)

// App is the application layer between the CLI and the tracker service.
// It constructs all dependencies from config and manages their lifecycle
// on Close.
type App struct {
	cfg      *config.Config
	store    tracker.Store
	fetcher  tracker.Fetcher
	archiver *media.Archiver
	service  *tracker.TrackerService
	logger   tracker.Logger
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Poll", "Merge") and tags all
// log output for the invocation. The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	idgen := tracker.UUIDGenerator{}
	opID := fmt.Sprintf("%s-%.8s", operation, idgen.New())

	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	st, err := store.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	sqlStore, ok := st.(*store.SQLiteStore)
	if ok {
		if err := sqlStore.MigrateUp(); err != nil {
			st.Close()
			logFile.Close()
			return nil, fmt.Errorf("migrating store: %w", err)
		}
	}

	mediaStore, err := media.NewStoreFromConfig(context.Background(), cfg.Media)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating media store: %w", err)
	}

	fetcher := reddit.NewClient(cfg.Reddit)
	archiver := media.NewArchiver(st, mediaStore, cfg.Reddit.UserAgent, log)

	minInterval := time.Duration(cfg.Poll.SnapshotMinIntervalMinutes) * time.Minute
	svc := tracker.NewTrackerService(st, fetcher, archiver, tracker.RealClock{}, log, minInterval)

	return &App{
		cfg:      cfg,
		store:    st,
		fetcher:  fetcher,
		archiver: archiver,
		service:  svc,
		logger:   log,
		logFile:  logFile,
	}, nil
}

// Poll runs one monitoring cycle for the account.
func (a *App) Poll(ctx context.Context, account string) (*tracker.ChangeSet, error) {
	return a.service.Poll(ctx, account)
}

// Stats returns the account's tracked statistics, or nil if unknown.
func (a *App) Stats(account string) (*tracker.AccountStats, error) {
	return a.service.Stats(account)
}

// History returns the most recent poll/merge runs.
func (a *App) History(limit int) ([]model.PollRun, error) {
	return a.service.History(limit)
}

// MergeStores consolidates the store at sourcePath into the store at
// targetPath. When outputPath is non-empty both inputs are left unmodified
// and the result is written to a fresh store at outputPath.
func (a *App) MergeStores(sourcePath, targetPath, outputPath string) error {
	src, err := store.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source store: %w", err)
	}
	defer src.Close()

	tgt, err := store.Open(targetPath)
	if err != nil {
		return fmt.Errorf("opening target store: %w", err)
	}
	defer tgt.Close()

	merger := tracker.NewMerger(a.logger)

	if outputPath == "" {
		runID, err := tgt.CreatePollRun("", "Merge", time.Now())
		if err != nil {
			return fmt.Errorf("recording merge run: %w", err)
		}
		mergeErr := merger.Merge(src, tgt)
		status := "success"
		if mergeErr != nil {
			status = "error"
		}
		if err := tgt.FinishPollRun(runID, time.Now(), status); err != nil {
			a.logger.Warn("finishing merge run", "error", err)
		}
		return mergeErr
	}

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("output store already exists at %s", outputPath)
	}
	out, err := store.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output store: %w", err)
	}
	defer out.Close()

	return merger.MergeInto(src, tgt, out)
}

// Serve runs the dashboard API until the listener fails.
func (a *App) Serve(addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	imageDir := ""
	if a.cfg.Media.Type == "filesystem" {
		imageDir = a.cfg.Media.Dir
	}
	srv := server.New(a.store, a.service, imageDir, a.logger)
	return srv.ListenAndServe(addr)
}

// Service exposes the tracker service for the scheduler.
func (a *App) Service() *tracker.TrackerService {
	return a.service
}

// Logger exposes the invocation logger.
func (a *App) Logger() tracker.Logger {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.cfg
}

// Close drains the archiver and releases all resources.
func (a *App) Close() error {
	a.archiver.Close()

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
