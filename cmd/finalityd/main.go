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

	"github.com/gorilla/mux"
	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finality-project/chain"
	"finality-project/config"
	"finality-project/db"
	"finality-project/handlers"
	"finality-project/logger"
	"finality-project/metrics"
	"finality-project/repository"
	"finality-project/routers"
	"finality-project/service"
)

type options struct {
	ConfigFile string `short:"c" long:"config" description:"Path to the YAML config file" default:"config/config.yaml"`
	LogLevel   string `long:"loglevel" description:"Override the configured log level"`
	NoReplay   bool   `long:"noreplay" description:"Start with an empty index instead of replaying the header journal"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	if err := run(cfg, !opts.NoReplay && cfg.LevelDB.ReplayOnStart); err != nil {
		logger.Logger.Fatal("Daemon failed", zap.Error(err))
	}
}

func run(cfg *config.Config, replay bool) error {
	logger.Logger.Info("Starting finality index server...")

	// Open the header journal
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		return fmt.Errorf("open leveldb: %w", err)
	}
	defer ldb.Close()

	headerRepo := repository.NewHeaderRepository(ldb)
	m := metrics.New()
	c := chain.NewChain(m)
	svc := service.NewService(c, headerRepo)

	if replay {
		start := time.Now()
		n, err := svc.Replay()
		if err != nil {
			return fmt.Errorf("replay header journal: %w", err)
		}
		logger.Logger.Info("Replayed header journal", zap.Int("headers", n),
			zap.Duration("took", time.Since(start)))
	}

	h := handlers.NewHandler(svc)
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}}
	if cfg.Metrics.Enabled {
		mr := mux.NewRouter()
		routers.RegisterMetrics(mr, m.Handler())
		servers = append(servers, &http.Server{
			Addr:    cfg.Metrics.Listen,
			Handler: mr,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Logger.Info("Server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Logger.Info("Shutdown signal received, exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
