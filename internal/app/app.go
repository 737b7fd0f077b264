package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vapi/internal/access"
	"vapi/internal/alerting"
	"vapi/internal/config"
	"vapi/internal/credential"
	"vapi/internal/feed"
	"vapi/internal/httpapi"
	"vapi/internal/legacy"
	"vapi/internal/metrics"
	"vapi/internal/service"
	"vapi/internal/storage"
	"vapi/internal/storage/mongo"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *feed.Registry
	// Out receives command output. Defaults to stdout.
	Out io.Writer

	preset *backend
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		Registry: feed.DefaultRegistry(),
		Out:      os.Stdout,
	}
}

// backend is an opened snapshot store with its optional capabilities.
type backend struct {
	store    storage.SnapshotStore
	history  storage.HistoryReader
	postgres *storage.Store
	close    func()
}

func (a *App) location() (*time.Location, error) {
	return a.Config.Snapshots.Location()
}

func (a *App) openStore(ctx context.Context) (*backend, error) {
	if a.preset != nil {
		be := *a.preset
		be.close = func() {}
		return &be, nil
	}
	loc, err := a.location()
	if err != nil {
		return nil, err
	}

	switch a.Config.Snapshots.Driver {
	case config.DriverMemory:
		a.Logger.Warn().Msg("snapshots.driver=memory; history is lost on exit")
		mem := storage.NewMemoryStore(loc)
		return &backend{store: mem, history: mem, close: func() {}}, nil

	case config.DriverPostgres:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		st := storage.NewStore(pool, loc)
		return &backend{store: st, history: st, postgres: st, close: st.Close}, nil

	case config.DriverMongo:
		st, err := mongo.Connect(ctx, a.Config.MongoDB, loc, a.Registry.GroupFields())
		if err != nil {
			return nil, err
		}
		closer := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.Close(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("close mongodb client")
			}
		}
		return &backend{store: st, history: st, close: closer}, nil

	default:
		return nil, fmt.Errorf("unsupported snapshots.driver %q", a.Config.Snapshots.Driver)
	}
}

// legacyBackend is the opened legacy database.
type legacyBackend struct {
	directory  *legacy.Directory
	businesses *legacy.Businesses
	feeds      *legacy.FeedStore
	defs       []feed.Definition
	db         *gorm.DB
	close      func()
}

func (a *App) openLegacy() (*legacyBackend, error) {
	cfg := a.Config.Legacy
	if !cfg.Enabled {
		return nil, nil
	}
	loc, err := a.location()
	if err != nil {
		return nil, err
	}

	db, err := legacy.Open(cfg, cfg.DSN, a.Logger)
	if err != nil {
		return nil, err
	}
	vbizDB := db
	if cfg.VbizDSN != "" && cfg.VbizDSN != cfg.DSN {
		if vbizDB, err = legacy.Open(cfg, cfg.VbizDSN, a.Logger); err != nil {
			_ = legacy.Close(db)
			return nil, err
		}
	}

	defs, err := legacy.Feeds(a.Registry)
	if err != nil {
		_ = legacy.Close(db)
		return nil, err
	}

	closer := func() {
		if err := legacy.Close(db); err != nil {
			a.Logger.Warn().Err(err).Msg("close legacy database")
		}
		if vbizDB != db {
			if err := legacy.Close(vbizDB); err != nil {
				a.Logger.Warn().Err(err).Msg("close vbiz database")
			}
		}
	}
	return &legacyBackend{
		directory:  legacy.NewDirectory(db),
		businesses: legacy.NewBusinesses(vbizDB),
		feeds:      legacy.NewFeedStore(db, loc, defs),
		defs:       defs,
		db:         db,
		close:      closer,
	}, nil
}

// newNotifier combines every enabled channel listed in alerting.channels.
// It returns nil when none is usable.
func (a *App) newNotifier(ctx context.Context) (alerting.Notifier, error) {
	cfg := a.Config.Alerting
	var channels []alerting.Notifier
	for _, name := range cfg.Channels {
		switch name {
		case "fcm":
			if !cfg.FCM.Enabled {
				continue
			}
			n, err := alerting.NewFCMNotifier(ctx, cfg.FCM, a.Logger)
			if err != nil {
				return nil, err
			}
			channels = append(channels, n)
		case "telegram":
			if !cfg.Telegram.Enabled {
				continue
			}
			t := cfg.Telegram
			channels = append(channels, alerting.NewTelegramNotifier(t.BotToken, t.ChatID, t.APIBase, cfg.Timeout, a.Logger))
		default:
			return nil, fmt.Errorf("unknown alerting channel %q", name)
		}
	}
	multi := alerting.NewMultiNotifier(channels...)
	if multi.Len() == 0 {
		return nil, nil
	}
	return multi, nil
}

func (a *App) newCodec() (*credential.Codec, error) {
	if err := a.Config.RequireSecret(); err != nil {
		return nil, err
	}
	return credential.NewCodec(a.Config.Auth.Secret)
}

// Serve runs the HTTP API until the context is cancelled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	codec, err := a.newCodec()
	if err != nil {
		return err
	}
	loc, err := a.location()
	if err != nil {
		return err
	}

	be, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	m := metrics.New("vapi")

	opts := service.Options{Metrics: m, DefaultSpan: a.Config.Snapshots.DefaultWindow}
	if a.Config.Alerting.Enabled {
		notifier, err := a.newNotifier(ctx)
		if err != nil {
			return err
		}
		if notifier == nil {
			a.Logger.Warn().Msg("alerting enabled but no channel configured; notifications disabled")
		} else {
			cfg := a.Config.Alerting
			dispatcher := alerting.NewDispatcher(notifier, cfg.QueueSize, cfg.Workers, cfg.Timeout, m, a.Logger)
			defer dispatcher.Close()
			opts.Dispatcher = dispatcher
		}
	}

	deps := httpapi.Deps{
		Registry: a.Registry,
		Feeds:    service.New(be.store, opts, a.Logger),
		Codec:    codec,
		HTTP:     a.Config.HTTP,
		Auth:     a.Config.Auth,
		Location: loc,
		Metrics:  m,
		Logger:   a.Logger,
	}

	lb, err := a.openLegacy()
	if err != nil {
		return err
	}
	if lb != nil {
		defer lb.close()
		l := &httpapi.Legacy{
			Directory:  lb.directory,
			Businesses: lb.businesses,
			Feeds:      service.New(lb.feeds, opts, a.Logger),
			Defs:       lb.defs,
		}
		if a.Config.Auth.LegacyMode == config.LegacyModeSharedKey {
			l.Guard = access.NewSharedKeyGuard(lb.directory)
		}
		deps.Legacy = l

		if interval := a.Config.Legacy.SyncInterval; interval > 0 {
			stopMirror, err := a.startMirror(ctx, lb, be.store, interval)
			if err != nil {
				return err
			}
			// runs before lb.close and be.close
			defer stopMirror()
		}
	}

	srv := &http.Server{
		Addr:              a.Config.HTTP.Listen,
		Handler:           httpapi.New(deps).Handler(),
		ReadTimeout:       a.Config.HTTP.ReadTimeout,
		ReadHeaderTimeout: a.Config.HTTP.ReadTimeout,
		WriteTimeout:      a.Config.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("listen", srv.Addr).
			Str("driver", a.Config.Snapshots.Driver).
			Bool("legacy", lb != nil).
			Msg("starting http server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		a.Logger.Error().Err(err).Msg("http server terminated with error")
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	a.Logger.Info().Msg("http server stopped")
	return nil
}

// IssueKeyOptions configure the issue-key command.
type IssueKeyOptions struct {
	Scope      string
	Permission int
	TTL        time.Duration
}

// IssueKey signs a credential and prints it.
func (a *App) IssueKey(opts IssueKeyOptions) (credential.Credential, error) {
	codec, err := a.newCodec()
	if err != nil {
		return credential.Credential{}, err
	}
	perm, err := credential.ParsePermission(opts.Permission)
	if err != nil {
		return credential.Credential{}, err
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = a.Config.Auth.DefaultTTL()
	}
	token, cred, err := codec.Issue(opts.Scope, perm, ttl)
	if err != nil {
		return credential.Credential{}, err
	}
	fmt.Fprintln(a.Out, token)
	a.Logger.Info().Str("jti", cred.ID).Str("scope", cred.Scope).Str("permission", cred.Permission.String()).
		Time("expires_at", cred.ExpiresAt).Msg("credential issued")
	return cred, nil
}

// Migrate applies the Postgres schema and, for sqlite legacy databases, the
// legacy tables.
func (a *App) Migrate(ctx context.Context) error {
	applied := false
	if a.Config.Snapshots.Driver == config.DriverPostgres {
		be, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer be.close()
		files, err := be.postgres.Migrate(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("files", files).Msg("snapshot schema applied")
		applied = true
	}

	if a.Config.Legacy.Enabled && a.Config.Legacy.Driver == legacy.DriverSQLite {
		lb, err := a.openLegacy()
		if err != nil {
			return err
		}
		defer lb.close()
		if err := legacy.AutoMigrate(lb.db); err != nil {
			return fmt.Errorf("migrate legacy tables: %w", err)
		}
		if err := lb.feeds.CreateTables(ctx); err != nil {
			return err
		}
		a.Logger.Info().Msg("legacy schema applied")
		applied = true
	}

	if !applied {
		return errors.New("nothing to migrate: use snapshots.driver=postgres or a sqlite legacy database")
	}
	return nil
}

// ExportOptions hold parameters for exporting feed history.
type ExportOptions struct {
	Feed      string
	Group     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Feed  string
	Limit int
}

// BackfillOptions configure the legacy import job.
type BackfillOptions struct {
	Feeds   []string
	From    time.Time
	To      time.Time
	DryRun  bool
	Workers int
}
