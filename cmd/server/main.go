// Command server starts the online judge HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/oj-server/internal/adapter/httpserver"
	"github.com/fairyhunter13/oj-server/internal/adapter/observability"
	"github.com/fairyhunter13/oj-server/internal/adapter/queue/dispatch"
	"github.com/fairyhunter13/oj-server/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/oj-server/internal/adapter/sandbox"
	"github.com/fairyhunter13/oj-server/internal/app"
	"github.com/fairyhunter13/oj-server/internal/config"
	"github.com/fairyhunter13/oj-server/internal/service/ratelimiter"
	"github.com/fairyhunter13/oj-server/internal/usecase"
)

// judgeMetrics forwards pipeline timings to the Prometheus vectors.
type judgeMetrics struct{}

func (judgeMetrics) ObserveCompile(language string, seconds float64) {
	observability.ObserveCompile(language, seconds)
}

func (judgeMetrics) ObserveCase(language string, seconds float64) {
	observability.ObserveCase(language, seconds)
}

// redisAdapter adapts *redis.Client to app.RedisClient for readiness.
type redisAdapter struct{ c *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult { return r.c.Ping(ctx) }

func main() {
	var (
		configPath string
		flushData  bool
	)
	flag.StringVar(&configPath, "config", "", "path to the judge config file (json or yaml)")
	flag.StringVar(&configPath, "c", "", "shorthand for -config")
	flag.BoolVar(&flushData, "flush-data", false, "wipe persisted jobs, users and contests before serving")
	flag.BoolVar(&flushData, "f", false, "shorthand for -flush-data")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: server -c <config file> [-f]")
		os.Exit(2)
	}

	jc, err := config.LoadJudgeConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, queue, and judge pipeline instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	if flushData {
		if err := sqlite.RemoveDatabase(cfg.DBPath); err != nil {
			slog.Error("flush data failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("persisted data flushed", slog.String("path", cfg.DBPath))
	}

	// Infra: sqlite store
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("db open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("error", err))
		}
	}()

	// Repositories
	jobsRepo := sqlite.NewJobsRepo(store)
	usersRepo := sqlite.NewUsersRepo(store)
	contestsRepo := sqlite.NewContestsRepo(store)

	// Schema, root user and the all-players contest (idempotent).
	if err := app.Bootstrap(ctx, store, usersRepo, contestsRepo, jc); err != nil {
		slog.Error("bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	sweepWorkdirs(cfg.SandboxDir)

	// Judge pipeline and worker pool
	judge := usecase.NewJudgeService(jobsRepo, sandbox.New(), jc, cfg.SandboxDir)
	judge.Metrics = judgeMetrics{}

	pool := dispatch.New(judge.Execute, dispatch.Options{
		MinWorkers:      cfg.WorkerMinCount,
		MaxWorkers:      cfg.WorkerMaxCount,
		QueueCapacity:   cfg.QueueCapacity,
		ScalingInterval: cfg.WorkerScalingInterval,
		IdleTimeout:     cfg.WorkerIdleTimeout,
	})
	poolCtx, poolCancel := context.WithCancel(ctx)
	defer poolCancel()
	pool.Start(poolCtx)

	// Usecases
	submitSvc := usecase.NewSubmitService(jobsRepo, usersRepo, contestsRepo, jc, pool)
	jobsSvc := usecase.NewJobsService(jobsRepo, usersRepo, pool)
	rankingSvc := usecase.NewRankingService(jobsRepo, usersRepo, contestsRepo, jc)
	usersSvc := usecase.NewUsersService(usersRepo)
	contestsSvc := usecase.NewContestsService(usersRepo, contestsRepo, jc)

	// Optional Redis-backed submit throttle
	var rdb *redis.Client
	if cfg.SubmitThrottleEnabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfig(cfg.SubmitBurst, cfg.SubmitWindow))
		submitSvc.Throttle = ratelimiter.SubmitThrottle{Limiter: limiter}
		slog.Info("submit throttle enabled",
			slog.Int("burst", cfg.SubmitBurst), slog.Duration("window", cfg.SubmitWindow))
	}
	defer func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	// Readiness checks
	var redisClient app.RedisClient
	if rdb != nil {
		redisClient = redisAdapter{rdb}
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(store, redisClient)

	// HTTP server
	srv := httpserver.NewServer(cfg, submitSvc, jobsSvc, rankingSvc, usersSvc, contestsSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              listenAddr(cfg, jc),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Requeue jobs the previous process left in Queueing or Running.
	if n, err := app.RecoverInterrupted(ctx, jobsRepo, pool, time.Now); err != nil {
		slog.Error("startup recovery failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Info("requeued interrupted jobs", slog.Int("count", n))
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.String("addr", srvHTTP.Addr))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-srv.ExitRequested():
		slog.Info("shutdown requested over http")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	pool.Stop(cfg.ServerShutdownTimeout)
}

// listenAddr resolves the bind address. Environment overrides beat the
// config file's server section.
func listenAddr(cfg config.Config, jc *config.JudgeConfig) string {
	host, port, err := net.SplitHostPort(jc.Addr())
	if err != nil {
		return jc.Addr()
	}
	if cfg.BindAddress != "" {
		host = cfg.BindAddress
	}
	if cfg.Port != 0 {
		port = strconv.Itoa(cfg.Port)
	}
	return net.JoinHostPort(host, port)
}

// sweepWorkdirs removes temp{id} directories orphaned by a crashed judge.
// Jobs clean up their own directory on completion; anything left is stale.
func sweepWorkdirs(dir string) {
	stale, err := filepath.Glob(filepath.Join(dir, "temp*"))
	if err != nil {
		return
	}
	for _, d := range stale {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			slog.Warn("sweep: could not remove stale workdir",
				slog.String("dir", d), slog.Any("error", err))
		}
	}
}
