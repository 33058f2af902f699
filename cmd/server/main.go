/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, .env, LEAVE_* env)
  2. Build the zap logger
  3. Open the SQLite store
  4. Wire ledger, resolver, services and notification sinks
  5. Start the HTTP server and, if enabled, the carry-forward scheduler

COMMAND-LINE FLAGS:
  -config        optional YAML config file
  -port          overrides LEAVE_PORT
  -db            overrides LEAVE_DB_PATH (":memory:" for a throwaway store)
  -seed-company  writes the default leave-type catalog for a company

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, drain HTTP (30s), flush Kafka,
  close the store.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/carryforward"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/encashment"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	seedCompany := flag.String("seed-company", "", "write the default leave types for this company")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger, *seedCompany); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, seedCompany string) error {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if seedCompany != "" {
		for _, lt := range domain.DefaultLeaveTypes(domain.CompanyID(seedCompany)) {
			if err := store.SaveLeaveType(ctx, lt); err != nil {
				return fmt.Errorf("seed leave types: %w", err)
			}
		}
		logger.Info("seeded leave types", zap.String("company_id", seedCompany))
	}

	resolver := policy.NewResolver(store, store)
	engine := ledger.NewEngine(store,
		ledger.WithQuotaResolver(resolver),
		ledger.WithCatalog(store),
		ledger.WithFiscalCalendar(domain.FiscalCalendar{StartMonth: time.Month(cfg.FiscalYearStartMonth)}),
		ledger.WithLogger(logger),
	)

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	var kafkaSink *notify.KafkaNotifier
	if cfg.KafkaEnabled() {
		kafkaSink = notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		notifiers = append(notifiers, kafkaSink)
		logger.Info("kafka notifications enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	carry := carryforward.NewEngine(store, engine, store, store, cfg.Rules, cfg.BatchConcurrency, logger)
	handler := api.NewHandler(api.Handler{
		Leaves:       leave.NewService(store, engine, store, store, notifiers, leave.Config{AllowNegativeOnApproval: cfg.AllowNegativeOnApproval}, logger),
		Policies:     policy.NewService(store, resolver, engine, store, store, logger),
		Ledger:       engine,
		CarryForward: carry,
		Encashment:   encashment.NewEngine(store, engine, store, cfg.Rules, cfg.BatchConcurrency, logger),
		Directory:    store,
		Catalog:      store,
	}, logger)

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var scheduler *carryforward.Scheduler
	if cfg.SchedulerEnabled && len(cfg.SchedulerCompanies) > 0 {
		companies := make([]domain.CompanyID, 0, len(cfg.SchedulerCompanies))
		for _, c := range cfg.SchedulerCompanies {
			companies = append(companies, domain.CompanyID(c))
		}
		scheduler = carryforward.NewScheduler(carry, companies, cfg.SchedulerInterval)
		scheduler.Start(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	logger.Info("server stopped")
	return nil
}
