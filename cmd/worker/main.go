package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/televita-health/televita/internal/app"
	"github.com/televita-health/televita/internal/auth"
	jobmetrics "github.com/televita-health/televita/internal/jobs"
	"github.com/televita-health/televita/internal/platform/db"
	"github.com/televita-health/televita/jobs"
)

type emailResolver struct {
	repo *auth.PGRepository
}

func (r emailResolver) EmailOf(ctx context.Context, userID int64) (string, error) {
	user, err := r.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	authRepo := auth.NewRepository(pool)

	mailer, err := jobs.NewMailer(jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		TLS:      cfg.SMTPTLS,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		logger.Warn("init mailer, notifications will be logged only", slog.Any("error", err))
		mailer = nil
	}

	metrics := jobmetrics.NewMetrics(nil)
	track := func(job string, handler asynq.HandlerFunc) asynq.HandlerFunc {
		return func(ctx context.Context, t *asynq.Task) error {
			return metrics.Track(job).End(handler(ctx, t))
		}
	}

	notifyHandler := jobs.NewPermissionChangedHandler(logger, emailResolver{repo: authRepo}, mailer)
	purgeHandler := jobs.NewSessionsPurgeHandler(logger, authRepo)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionChanged, Handler: track(jobs.TaskPermissionChanged, notifyHandler)},
			{Type: jobs.TaskSessionsPurge, Handler: track(jobs.TaskSessionsPurge, purgeHandler)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: jobs.NewSessionsPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
