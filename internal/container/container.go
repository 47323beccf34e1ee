package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshua-takyi/reviewtrust/internal/config"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/models"
	"github.com/joshua-takyi/reviewtrust/internal/notify"
	"github.com/joshua-takyi/reviewtrust/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
	"github.com/wneessen/go-mail"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	// Database clients
	SupabaseClient *supabase.Client
	MongoDBClient  *mongo.Client
	RedisClient    *redis.Client

	Submissions models.SubmissionStore
	Snapshots   models.RatingSnapshotStore
	Businesses  models.BusinessDirectory

	Outbox            *services.Outbox
	Pipeline          *services.ReviewPipeline
	ModerationService *services.ModerationService
	Subscriber        notify.Subscriber
	TokenValidator    helpers.TokenValidator
}

// Clients are the external connections the container is built from.
// Nil clients select the in-process fallbacks.
type Clients struct {
	Supabase *supabase.Client
	MongoDB  *mongo.Client
	Redis    *redis.Client
	// Memory backs every store when STORE_DRIVER=memory.
	Memory *models.MemoryRepo
	// Validator overrides the validator derived from config.
	Validator helpers.TokenValidator
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, clients Clients) (*Container, error) {
	c := &Container{
		Config:         cfg,
		Logger:         logger,
		SupabaseClient: clients.Supabase,
		MongoDBClient:  clients.MongoDB,
		RedisClient:    clients.Redis,
	}

	// Initialize repositories
	switch {
	case clients.Memory != nil:
		c.Submissions = clients.Memory
		c.Snapshots = clients.Memory
		c.Businesses = clients.Memory
	case clients.MongoDB != nil && clients.Supabase != nil:
		mongoRepo := models.MongodbNewRepo(clients.MongoDB, cfg.MongoDBDatabase)
		c.Submissions = mongoRepo
		c.Snapshots = mongoRepo
		c.Businesses = models.SupabaseNewRepo(clients.Supabase)
	default:
		return nil, fmt.Errorf("no store configured for driver %q", cfg.StoreDriver)
	}

	policy := services.DefaultSpamPolicy()
	if cfg.Pipeline.SpamPolicyFile != "" {
		loaded, err := services.LoadSpamPolicy(cfg.Pipeline.SpamPolicyFile)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	var realtime services.RealtimeChannel
	var locker services.Locker
	if clients.Redis != nil {
		channel := notify.NewRedisChannel(clients.Redis, logger)
		realtime, c.Subscriber = channel, channel
		locker = services.NewRedisLocker(clients.Redis, "reviewtrust:lock:")
	} else {
		logger.Info("Redis not configured, realtime events and submit locks stay in-process")
		hub := notify.NewHub(logger)
		realtime, c.Subscriber = hub, hub
		locker = services.NewLocalLocker()
	}

	c.Outbox = services.NewOutbox(services.OutboxConfig{
		QueueSize:   cfg.Outbox.QueueSize,
		Workers:     cfg.Outbox.Workers,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Backoff:     cfg.Outbox.Backoff,
	}, notifier, realtime, logger)

	clock := services.Clock(services.SystemClock)
	guard := services.NewDuplicateGuard(c.Submissions, cfg.Pipeline.DuplicateWindow, cfg.Pipeline.IPDailyLimit, clock, logger)
	scorer := services.NewSpamScorer(policy, logger)
	tokens := services.NewTokenManager(c.Submissions, cfg.Pipeline.TokenTTL, clock, logger)
	aggregator := services.NewRatingAggregator(c.Submissions, c.Snapshots, clock, logger)
	alerts := services.NewAlertDispatcher(c.Outbox, cfg.Pipeline.AlertAverageThreshold, cfg.Pipeline.AlertMaxRating, clock, logger)

	c.Pipeline = services.NewReviewPipeline(services.PipelineConfig{},
		c.Submissions, c.Businesses, guard, scorer, tokens, aggregator, alerts, c.Outbox, locker, clock, logger)
	c.ModerationService = services.NewModerationService(c.Submissions, c.Businesses, tokens, aggregator, c.Outbox, clock, logger)

	switch {
	case clients.Validator != nil:
		c.TokenValidator = clients.Validator
	case cfg.SupabaseJWTSecret != "":
		c.TokenValidator = helpers.NewHMACValidator(cfg.SupabaseJWTSecret)
	case cfg.SupabaseURL != "":
		v, err := helpers.NewJWKSValidator(ctx, cfg.SupabaseURL)
		if err != nil {
			return nil, err
		}
		c.TokenValidator = v
	default:
		logger.Warn("No JWT verification configured, admin and owner routes will reject every request")
	}

	return c, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (services.Notifier, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, e-mails will only be logged")
		return notify.NewLogNotifier(logger, cfg.PublicBaseURL), nil
	}
	policy := mail.TLSMandatory
	if cfg.SMTP.Insecure {
		policy = mail.TLSOpportunistic
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		BaseURL:   cfg.PublicBaseURL,
		TLSPolicy: policy,
	}, logger)
}

// Close drains pending notifications and stops background key refresh.
func (c *Container) Close(ctx context.Context) error {
	err := c.Outbox.Close(ctx)
	if closer, ok := c.TokenValidator.(interface{ Close() }); ok {
		closer.Close()
	}
	return err
}
