package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"allocator/internal/config"
	"allocator/internal/database"
	"allocator/internal/handlers"
	"allocator/internal/portfolio"
	"allocator/internal/service"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogLevel < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initDB(cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	r := database.New(db, logger)
	persister := service.NewPersister(r, logger, service.WithRetries(cfg.PersistRetries))
	priceSvc := service.NewMockPriceService(r, logger)
	workspaces := service.NewWorkspaces(r, persister, logger, portfolio.WithGracePeriod(cfg.UndoGrace))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	priceSvc.Start(ctx, cfg.PriceInterval)

	h := handlers.NewHandler(workspaces, priceSvc, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(h, logger),
	}

	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	cancel()
	shutdown(srv, workspaces, persister, logger, 10*time.Second)
	logger.Info("server exited")
}

// shutdown commits pending deletions first, which also ends open countdown streams, then
// stops the HTTP server and drains the persist queue. Each stage gets its own deadline.
func shutdown(srv *http.Server, workspaces *service.Workspaces, persister *service.Persister, logger *logrus.Logger, timeout time.Duration) {
	workspaces.CloseAll()

	httpCtx, stopHTTP := context.WithTimeout(context.Background(), timeout)
	defer stopHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}

	drainCtx, stopDrain := context.WithTimeout(context.Background(), timeout)
	defer stopDrain()
	if err := persister.Stop(drainCtx); err != nil {
		logger.Errorf("persist queue not drained: %v", err)
	}
	if n := persister.Failures(); n > 0 {
		logger.Warnf("%d changes could not be persisted", n)
	}
}

func initDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
