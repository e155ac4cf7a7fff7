package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/park285/biblequest-duels/internal/api"
	"github.com/park285/biblequest-duels/internal/archive"
	appcfg "github.com/park285/biblequest-duels/internal/config"
	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/msgcat"
	"github.com/park285/biblequest-duels/internal/obslog"
	"github.com/park285/biblequest-duels/internal/progress"
	"github.com/park285/biblequest-duels/internal/question"
	"github.com/park285/biblequest-duels/internal/scheduler"
	"github.com/park285/biblequest-duels/internal/storage"
	"github.com/park285/biblequest-duels/internal/tournament"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ropts, err := duel.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_url_invalid", zap.Error(err))
	}
	rdb := redis.NewClient(ropts)
	defer func() { _ = rdb.Close() }()
	pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		cancel()
		logger.Fatal("redis_ping_failed", zap.Error(err))
	}
	cancel()

	bank, err := question.LoadFile(cfg.QuestionsFile)
	if err != nil {
		logger.Fatal("question_bank_load_failed", zap.String("path", cfg.QuestionsFile), zap.Error(err))
	}

	// Postgres is optional. Without it archives and progress live in memory.
	var (
		db        *sql.DB
		questions question.Source = bank
		archRepo  archive.Repository
		progRepo  progress.Repository
	)
	if cfg.DatabaseURL != "" {
		if db, err = storage.Open(context.Background(), cfg.DatabaseURL); err != nil {
			logger.Fatal("db_open_failed", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		if err := storage.Migrate(db); err != nil {
			logger.Fatal("db_migrate_failed", zap.Error(err))
		}
		pg := question.NewPGSource(db)
		ictx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := pg.Import(ictx, bank.All())
		cancel()
		if err != nil {
			logger.Fatal("question_import_failed", zap.Error(err))
		}
		questions = pg
		archRepo = archive.NewPGRepository(db)
		progRepo = progress.NewPGRepository(db)
		logger.Info("storage_postgres", zap.Int("questions", bank.Len()))
	} else {
		archRepo = archive.NewMemoryRepository()
		progRepo = progress.NewMemoryRepository()
		logger.Warn("storage_memory", zap.String("reason", "DATABASE_URL not set"))
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_load_failed", zap.Error(err))
	}

	duels := duel.NewManager(duel.NewRedisStore(rdb, cfg.MaxCASRetries), questions, duel.Options{
		DefaultTargetStreak: cfg.DefaultTargetStreak,
		LivenessTimeout:     cfg.LivenessTimeout,
	})
	prog := progress.NewService(progRepo, progress.Rewards{XPWin: cfg.XPWin, XPLoss: cfg.XPLoss, CoinsWin: cfg.CoinsWin})

	loc, _ := time.LoadLocation(cfg.TournamentTZ)
	tours := tournament.NewService(tournament.NewStore(rdb, cfg.MaxCASRetries), duels, prog, tournament.Options{
		Location:   loc,
		OpenHour:   cfg.TournamentHour,
		StartSizes: cfg.TournamentStartSizes,
	})

	duels.OnFinished(archive.Hook(archRepo))
	duels.OnFinished(tours.Hook())
	duels.OnFinished(progress.Hook(prog))

	sched, err := scheduler.New(duels, tours, scheduler.Options{SearchTimeout: cfg.SearchTimeout})
	if err != nil {
		logger.Fatal("scheduler_init_failed", zap.Error(err))
	}
	sched.Start()

	srv := api.New(api.Deps{
		Duels:       duels,
		Questions:   questions,
		Tournaments: tours,
		Archive:     archRepo,
		Progress:    prog,
		Messages:    msgs,
	}, api.Options{
		PollInterval:  cfg.PollInterval,
		QuestionBatch: cfg.QuestionBatchSize,
		AnswerRate:    rate.Limit(cfg.AnswerRatePerSec),
		AnswerBurst:   cfg.AnswerBurst,
		TournamentHr:  cfg.TournamentHour,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http_serve_failed", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler_shutdown_failed", zap.Error(err))
	}
}
