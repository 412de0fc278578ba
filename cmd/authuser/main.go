package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/config"
	"github.com/mindtastic/authuser/interceptor"
	"github.com/mindtastic/authuser/log"
	"github.com/mindtastic/authuser/navhost"
	"github.com/mindtastic/authuser/store/localfile"
	"github.com/mindtastic/authuser/store/logfile"
)

const shutdownTimeout = 10 * time.Second

type application struct {
	store      authuser.ReadWriteStore
	host       *navhost.Host
	httpServer *http.Server
	// closeStore releases the store on shutdown; nil if there is nothing to release.
	closeStore func() error
}

func main() {
	cfg, err := config.Load(config.Flags(os.Args[0]), os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger, err := log.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	log.Set(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("error initializing: %v", err)
	}

	if err := app.run(ctx); err != nil {
		log.Errorf("%v", err)
	}
	// Flush queued records before exiting.
	logger.Close()
}

func newApplication(ctx context.Context, cfg config.Config) (*application, error) {
	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	if err := seedAccounts(ctx, store, cfg.SeedAccounts()); err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		return nil, err
	}

	host := navhost.New()
	if err := interceptor.New(store, host).Register(host); err != nil {
		return nil, err
	}

	app := &application{
		store:      store,
		host:       host,
		closeStore: closeStore,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	app.httpServer.Handler = app.initializeRouter()
	return app, nil
}

func openStore(cfg config.StoreConfig) (authuser.ReadWriteStore, func() error, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return localfile.New(), nil, nil
	case config.StoreLocalFile:
		lfs := localfile.New()
		if err := lfs.InitializePersistence(cfg.Path); err != nil {
			return nil, nil, err
		}
		return lfs, lfs.Shutdown, nil
	case config.StoreLogFile:
		var opts []logfile.Option
		if cfg.Sync {
			opts = append(opts, logfile.WithSync())
		}
		s, err := logfile.NewStore(cfg.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// seedAccounts stores the configured accounts for services that have none yet.
func seedAccounts(ctx context.Context, store authuser.ReadWriteStore, accounts map[authuser.Service]string) error {
	for svc, account := range accounts {
		_, err := store.Get(ctx, svc)
		if err == nil {
			continue
		}
		if !errors.Is(err, authuser.ErrNotFound) {
			return fmt.Errorf("error reading account for %s: %w", svc, err)
		}
		if err := store.Set(ctx, svc, account); err != nil {
			return fmt.Errorf("error seeding account for %s: %w", svc, err)
		}
		log.Infof("seeded default account %q for %s", account, svc)
	}
	return nil
}

func (a *application) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("listening on address %q", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening on address %q: %w", a.httpServer.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Infof("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down server: %w", err))
		}
		if a.closeStore != nil {
			if err := a.closeStore(); err != nil {
				errs = append(errs, fmt.Errorf("error shutting down database: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
