package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/app"
	"github.com/nhle/health-notify/internal/credential"
	"github.com/nhle/health-notify/internal/enrich"
	"github.com/nhle/health-notify/internal/logging"
	"github.com/nhle/health-notify/internal/metrics"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/store"
	appsync "github.com/nhle/health-notify/internal/sync"
	"github.com/nhle/health-notify/internal/toast"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "healthnotify:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config.yaml")
	baseURL := flag.String("base-url", "", "notification API base URL (overrides config)")
	login := flag.String("login", "", "store a bearer token in the system keyring and exit")
	logout := flag.Bool("logout", false, "remove the stored bearer token and exit")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	switch {
	case *logout:
		return signOut(cfg)

	case *login != "":
		sess, err := credential.ParseSession(strings.TrimSpace(*login))
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		if err := credential.Set(credential.TokenKey, strings.TrimSpace(*login)); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
		fmt.Printf("Signed in as %s.\n", sess.Label())
		return nil
	}

	if *baseURL != "" {
		cfg.Server.BaseURL = *baseURL
		if err := model.ValidateConfig(cfg); err != nil {
			return err
		}
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	session, err := credential.LoadSession()
	if errors.Is(err, credential.ErrNoToken) {
		return fmt.Errorf("not signed in: run healthnotify -login <token> or set %s", credential.TokenEnv)
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	log.Info("starting",
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("user", session.UserID),
		zap.String("role", string(session.Role)),
	)

	client := api.NewClient(cfg.Server.BaseURL, session, &http.Client{
		Timeout: time.Duration(cfg.Server.TimeoutSec) * time.Second,
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	// Forget old toasts whose notification has left the inbox.
	pruneCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	n, err := store.PruneStaleToasts(pruneCtx, db, session.UserID, cfg.Sync.Filter().Key(), time.Now().AddDate(0, 0, -90))
	if err != nil {
		log.Warn("pruning toast ledger failed", zap.Error(err))
	} else if n > 0 {
		log.Debug("pruned toast ledger", zap.Int64("rows", n))
	}
	cancel()

	engines := appsync.NewEngineSet(client, appsync.Options{
		UserID:          session.UserID,
		AutoRefresh:     cfg.Sync.AutoRefresh,
		RefreshInterval: time.Duration(cfg.Sync.RefreshIntervalSec) * time.Second,
	}, log,
		appsync.WithLogger(log.Named("sync")),
		appsync.WithSnapshotStore(db),
	)
	defer engines.Close()

	queue := toast.NewQueue(
		toast.WithTimeout(time.Duration(cfg.Toast.TimeoutSec)*time.Second),
		toast.WithLedger(store.NewOwnerLedger(db, session.UserID)),
		toast.WithLogger(log.Named("toast")),
	)

	root := app.New(app.Deps{
		Engines:  engines,
		Toasts:   queue,
		Resolver: enrich.NewResolver(client, log.Named("enrich")),
		Session:  session,
		Inbox:    cfg.Sync.Filter(),
		Log:      log,
	})

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

// signOut removes the stored token and the cached lists of its user.
func signOut(cfg *model.AppConfig) error {
	if sess, err := credential.LoadSession(); err == nil {
		if db, err := store.NewSQLiteStore(cfg.Cache.Path); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := db.DeleteSnapshots(ctx, sess.UserID); err != nil {
				fmt.Fprintln(os.Stderr, "healthnotify: clearing cache:", err)
			}
			cancel()
			_ = db.Close()
		}
	}

	if err := credential.Delete(credential.TokenKey); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}
