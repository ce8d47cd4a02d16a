package main

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
	"github.com/mobistudy/mobistudy-api/internal/core/service"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/attachments"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/db/mongo"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/db/redis"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/mail"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/queue"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/reporting"
	"github.com/mobistudy/mobistudy-api/internal/pkg/config"
	"github.com/mobistudy/mobistudy-api/pkg/logger"
)

// app holds every wired component. Close releases the connections in reverse
// order of acquisition.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	mongoClient *mongodriver.Client
	db          *mongodriver.Database
	rdb         *goredis.Client

	incidents    ports.IncidentReporter
	dispatcher   *queue.NotificationDispatcher
	auth         *service.AuthService
	participants *service.ParticipantService
	healthData   *service.HealthDataService
	deletion     *service.DeletionService
	reconciler   *service.PendingReconciler

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Development(),
		Service: "mobistudy-api",
		Env:     cfg.Env,
	})

	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	reporter, flush, err := reporting.New(reporting.Options{DSN: cfg.SentryDSN, Environment: cfg.Env}, a.log)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	a.incidents = reporter
	a.closers = append(a.closers, func() error { flush(); return nil })

	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	a.mongoClient, a.db = client, db
	a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.closers = append(a.closers, rdb.Close)

	store, closeStore, err := attachments.Open(ctx, attachments.Config{
		Driver: cfg.Attachments.Driver,
		Bucket: cfg.Attachments.Bucket,
		S3: attachments.S3Config{
			Region:          cfg.Attachments.S3Region,
			Endpoint:        cfg.Attachments.S3Endpoint,
			PathStyle:       cfg.Attachments.S3PathStyle,
			AccessKeyID:     cfg.Attachments.S3AccessKeyID,
			SecretAccessKey: cfg.Attachments.S3SecretAccessKey,
		},
		GCS: attachments.GCSConfig{CredentialsFile: cfg.Attachments.GCSCredentialsFile},
	}, db)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeStore)

	// --- Repositories ---
	users := mongo.NewUserRepository(db)
	participantRepo := mongo.NewParticipantRepository(db)
	records := mongo.NewHealthDataRepository(db)
	directory := mongo.NewDirectory(db)
	locker := redis.NewParticipantLocker(rdb, cfg.Redis.LockTTL, cfg.Redis.LockWait, a.log)
	audit := service.NewAuditTrail(mongo.NewAuditRepository(db), a.log)
	guard := access.NewGuard(directory, a.log)

	// --- Notifications ---
	var sender ports.EmailSender = mail.NewLogSender(a.log)
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, a.log)
	}
	notifications := service.NewNotificationService(users, directory, sender, a.log)
	a.dispatcher = queue.NewNotificationDispatcher(cfg.Notify.Workers, cfg.Notify.Rate, notifications, a.log)

	// --- Services ---
	a.auth = service.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
	a.deletion = service.NewDeletionService(service.DeletionDeps{
		Participants: participantRepo,
		Users:        users,
		Attachments:  store,
		Purger:       mongo.NewUserDataPurger(db),
		Audit:        audit,
	}, a.log)
	a.participants = service.NewParticipantService(service.ParticipantDeps{
		Participants: participantRepo,
		Users:        users,
		Directory:    directory,
		Locker:       locker,
		Guard:        guard,
		Audit:        audit,
		Notifier:     a.dispatcher,
		Deletion:     a.deletion,
	}, a.log)
	a.healthData = service.NewHealthDataService(service.HealthDataDeps{
		Participants: participantRepo,
		Records:      records,
		Attachments:  store,
		Tx:           mongo.NewTxRunner(client),
		Locker:       locker,
		Guard:        guard,
		Audit:        audit,
		Incidents:    a.incidents,
	}, a.log)
	a.reconciler = service.NewPendingReconciler(records, store, cfg.Reconcile.Grace, a.log)
	return nil
}

// Close releases resources in reverse order and joins their errors.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
