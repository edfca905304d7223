package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	natspkg "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	rediscache "github.com/strogmv/renodesk/internal/adapter/cache/redis"
	natsadapter "github.com/strogmv/renodesk/internal/adapter/events/nats"
	"github.com/strogmv/renodesk/internal/adapter/notifications"
	"github.com/strogmv/renodesk/internal/adapter/provider/eventstats"
	"github.com/strogmv/renodesk/internal/adapter/provider/ses"
	"github.com/strogmv/renodesk/internal/adapter/provider/smsgateway"
	"github.com/strogmv/renodesk/internal/adapter/provider/smtp"
	"github.com/strogmv/renodesk/internal/adapter/repository/postgres"
	"github.com/strogmv/renodesk/internal/adapter/storage/s3"
	"github.com/strogmv/renodesk/internal/config"
	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/report"
	"github.com/strogmv/renodesk/internal/port"
	"github.com/strogmv/renodesk/internal/service"
	httptransport "github.com/strogmv/renodesk/internal/transport/http"
	"github.com/strogmv/renodesk/internal/worker"
)

const (
	suppressionCacheTTL = 5 * time.Minute
	retentionInterval   = 24 * time.Hour
	feedbackMaxDeliver  = 10
)

var breakerSettings = notifications.BreakerSettings{
	Threshold:   5,
	Cooldown:    30 * time.Second,
	HalfOpenMax: 1,
}

// RuntimeContainer owns the process-wide clients and the wired services.
type RuntimeContainer struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Redis  *goredis.Client
	NATS   *natsadapter.Client

	Queue        *postgres.QueueRepository
	Events       *postgres.EventLog
	System       *postgres.SystemRepository
	Suppressions port.SuppressionRepository
	Metrics      port.MetricsRepository
	Idempotency  port.IdempotencyStore

	Router     *notifications.Router
	Dispatcher *service.Dispatcher
	Feedback   *service.FeedbackConsumer
	Reputation *service.ReputationAggregator
	Expiration *service.ExpirationProcessor
}

// NewRuntimeContainer connects the backing services and wires the pipeline.
// Postgres is required; Redis, NATS and S3 degrade to reduced functionality when absent.
func NewRuntimeContainer(ctx context.Context, cfg *config.Config) (*RuntimeContainer, error) {
	log := logger.From(ctx)
	c := &RuntimeContainer{Config: cfg}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.Queue = postgres.NewQueueRepository(pool)
	c.Events = postgres.NewEventLog(pool)
	c.System = postgres.NewSystemRepository(pool)
	c.Metrics = postgres.NewMetricsRepository(pool)
	templates := postgres.NewTemplateRepository(pool)
	requests := postgres.NewRequestRepository(pool)
	txManager := postgres.NewTxManager(pool)

	var suppressions port.SuppressionRepository = postgres.NewSuppressionRepository(pool)
	c.Idempotency = c.System
	if cfg.RedisAddr != "" {
		rdb, err := rediscache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, using postgres for dedupe and uncached suppression reads", slog.Any("error", err))
		} else {
			c.Redis = rdb
			c.Idempotency = rediscache.NewIdempotencyStore(rdb)
			suppressions = rediscache.NewSuppressionCached(suppressions, rdb, suppressionCacheTTL)
		}
	}
	c.Suppressions = suppressions

	nc, err := natsadapter.NewClient(cfg.NATSURL)
	if err != nil {
		log.Warn("nats unavailable, sms channel and feedback stream disabled", slog.Any("error", err))
	} else {
		c.NATS = nc
	}

	c.Router = notifications.NewRouter(breakerSettings)
	var stats port.StatisticsProvider
	switch cfg.EmailProvider {
	case "smtp":
		c.Router.Register(domain.ChannelEmail, smtp.New(cfg))
		stats = eventstats.New(c.Events, cfg.DailySendQuota)
	default:
		sesClient, err := ses.New(ctx, cfg.AWSRegion, cfg.SESEndpoint, cfg.EmailSender(), cfg.SESConfigSet)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ses client: %w", err)
		}
		c.Router.Register(domain.ChannelEmail, sesClient)
		stats = sesClient
	}
	if c.NATS != nil {
		c.Router.Register(domain.ChannelSMS, smsgateway.New(c.NATS, cfg.SMSSubject, cfg.SMSTimeout))
	}

	c.Dispatcher = service.NewDispatcher(c.Queue, templates, c.Suppressions, c.Events, c.Metrics, c.Router, service.DispatcherConfig{
		BatchSize:                  cfg.DispatchBatchSize,
		MaxRetries:                 cfg.DispatchMaxRetries,
		RunTimeout:                 cfg.DispatchRunTimeout,
		EventTTL:                   cfg.EventTTL,
		SuppressOnPermanentFailure: cfg.SuppressOnPermanentFailure,
	})

	c.Feedback = service.NewFeedbackConsumer(c.Suppressions, c.Events, c.Metrics, c.Idempotency, txManager, service.FeedbackConfig{
		EventTTL:  cfg.EventTTL,
		DedupeTTL: cfg.FeedbackDedupe,
	})

	alerter := service.NewEmailAlerter(c.Router, cfg.AlertRecipients)
	c.Reputation = service.NewReputationAggregator(stats, c.Metrics, alerter, service.ReputationConfig{
		Thresholds: cfg.Thresholds(),
	})
	if cfg.ReportBucket != "" {
		store, err := s3.New(ctx, cfg.AWSRegion, cfg.ReportBucket, cfg.S3Endpoint)
		if err != nil {
			log.Warn("report archive disabled", slog.Any("error", err))
		} else {
			c.Reputation.WithArchive(store, report.NewGenerator())
		}
	}

	c.Expiration = service.NewExpirationProcessor(requests, c.Queue, service.ExpirationConfig{
		Inactivity:       cfg.ExpirationInactivity,
		BatchSize:        cfg.ExpirationBatchSize,
		TemplateID:       cfg.ExpirationTemplateID,
		NotifyRecipients: cfg.ExpirationNotifyEmails,
	})

	log.Info("runtime container ready",
		slog.String("email_provider", cfg.EmailProvider),
		slog.Any("channels", c.Router.Channels()),
		slog.Bool("redis", c.Redis != nil),
		slog.Bool("nats", c.NATS != nil),
		slog.Bool("report_archive", cfg.ReportBucket != ""),
	)
	return c, nil
}

// Scheduler returns the periodic jobs: dispatch, reputation, expiration and retention.
func (c *RuntimeContainer) Scheduler() *worker.Scheduler {
	return worker.NewScheduler(
		worker.Job{
			Name:      "dispatch",
			Interval:  c.Config.DispatchInterval,
			Immediate: true,
			Run: func(ctx context.Context) error {
				_, err := c.Dispatcher.Run(ctx)
				return err
			},
		},
		worker.Job{
			Name:     "reputation",
			Interval: c.Config.ReputationInterval,
			Run: func(ctx context.Context) error {
				_, err := c.Reputation.Run(ctx)
				return err
			},
		},
		worker.Job{
			Name:     "expiration",
			Interval: c.Config.ExpirationInterval,
			Run: func(ctx context.Context) error {
				_, err := c.Expiration.Run(ctx, false)
				return err
			},
		},
		worker.Job{
			Name:     "retention",
			Interval: retentionInterval,
			Run: func(ctx context.Context) error {
				_, err := c.Prune(ctx)
				return err
			},
		},
	)
}

// ConsumeFeedback subscribes the feedback consumer to the provider feedback stream.
func (c *RuntimeContainer) ConsumeFeedback(ctx context.Context) (*natspkg.Subscription, error) {
	if c.NATS == nil {
		return nil, errors.New("feedback stream requires nats")
	}
	if err := c.NATS.EnsureStream(c.Config.FeedbackStream, c.Config.FeedbackSubj); err != nil {
		return nil, err
	}
	return c.NATS.ConsumeDurable(ctx, c.Config.FeedbackSubj, c.Config.FeedbackQueue, feedbackMaxDeliver, c.Feedback.Handle)
}

// Prune deletes events and dedupe keys past their retention horizon.
func (c *RuntimeContainer) Prune(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	events, err := c.Events.PruneExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	keys, err := c.System.PruneKeys(ctx, now)
	if err != nil {
		return events, fmt.Errorf("prune idempotency keys: %w", err)
	}
	logger.From(ctx).Info("retention pass finished", slog.Int64("events", events), slog.Int64("idempotency_keys", keys))
	return events, nil
}

// HTTPHandler returns the instrumented API router.
func (c *RuntimeContainer) HTTPHandler() http.Handler {
	checks := map[string]httptransport.Check{
		"postgres": c.Pool.Ping,
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	if c.NATS != nil {
		checks["nats"] = func(context.Context) error {
			if !c.NATS.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}
	if c.Config.APIToken == "" {
		slog.Warn("API_TOKEN not set, /api routes are unauthenticated")
	}
	h := httptransport.NewHandler(c.Feedback, c.Suppressions, c.Metrics, c.Events, checks)
	return httptransport.NewRouter(h, c.Config.CORSOrigins, c.Config.APIToken)
}

// Close releases every client the container opened.
func (c *RuntimeContainer) Close() {
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
