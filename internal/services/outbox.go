package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

// Notifier delivers e-mail. Implementations live in internal/notify.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, name, token, businessName string) error
	SendPublishedConfirmation(ctx context.Context, email, businessName string) error
	SendLowRatingAlert(ctx context.Context, ownerEmail, businessName string, averageRating float64, summary models.SubmissionSummary) error
}

// RealtimeChannel pushes events to connected business dashboards.
type RealtimeChannel interface {
	PublishLowRatingAlert(ctx context.Context, businessID string, payload models.AlertEvent) error
	PublishNewReviewNotification(ctx context.Context, businessID string, payload models.ReviewNotification) error
}

type MessageKind string

const (
	KindVerificationEmail     MessageKind = "verification_email"
	KindPublishedConfirmation MessageKind = "published_confirmation"
	KindLowRatingEmail        MessageKind = "low_rating_email"
	KindLowRatingPush         MessageKind = "low_rating_push"
	KindNewReviewPush         MessageKind = "new_review_push"
)

// OutboundMessage is one best-effort side effect of the pipeline.
type OutboundMessage struct {
	Kind         MessageKind
	Email        string
	Name         string
	Token        string
	BusinessID   string
	BusinessName string
	Alert        *models.AlertEvent
	Review       *models.ReviewNotification
}

// Publisher accepts outbound messages without blocking the caller.
type Publisher interface {
	Publish(msg OutboundMessage)
}

type OutboxConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	SendTimeout time.Duration
}

type OutboxStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

var errUnknownKind = errors.New("unknown message kind")

// Outbox decouples notification delivery from the request path. Each message
// is retried with linear backoff; failures are logged and counted, never
// propagated back to the request that produced them.
type Outbox struct {
	cfg      OutboxConfig
	queue    chan OutboundMessage
	notifier Notifier
	realtime RealtimeChannel
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewOutbox(cfg OutboxConfig, notifier Notifier, realtime RealtimeChannel, logger *slog.Logger) *Outbox {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Outbox{
		cfg:      cfg,
		queue:    make(chan OutboundMessage, cfg.QueueSize),
		notifier: notifier,
		realtime: realtime,
		logger:   logger,
	}
}

func (o *Outbox) Start() {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

func (o *Outbox) Publish(msg OutboundMessage) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		o.dropped.Add(1)
		o.logger.Warn("Outbox closed, message dropped", "kind", msg.Kind, "business_id", msg.BusinessID)
		return
	}
	select {
	case o.queue <- msg:
	default:
		o.dropped.Add(1)
		o.logger.Error("Outbox full, message dropped", "kind", msg.Kind, "business_id", msg.BusinessID)
	}
}

// Close stops intake and waits for queued messages until ctx is done.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox drain interrupted: %w", ctx.Err())
	}
}

func (o *Outbox) Stats() OutboxStats {
	return OutboxStats{
		Delivered: o.delivered.Load(),
		Failed:    o.failed.Load(),
		Dropped:   o.dropped.Load(),
	}
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for msg := range o.queue {
		o.process(msg)
	}
}

func (o *Outbox) process(msg OutboundMessage) {
	var err error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SendTimeout)
		err = o.deliver(ctx, msg)
		cancel()
		if err == nil {
			o.delivered.Add(1)
			return
		}
		if errors.Is(err, errUnknownKind) {
			break
		}
		o.logger.Warn("Outbound delivery failed",
			"kind", msg.Kind,
			"business_id", msg.BusinessID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < o.cfg.MaxAttempts && o.cfg.Backoff > 0 {
			time.Sleep(time.Duration(attempt) * o.cfg.Backoff)
		}
	}
	o.failed.Add(1)
	o.logger.Error("Outbound message abandoned",
		"kind", msg.Kind,
		"business_id", msg.BusinessID,
		"error", err,
	)
}

func (o *Outbox) deliver(ctx context.Context, msg OutboundMessage) error {
	switch msg.Kind {
	case KindVerificationEmail:
		return o.notifier.SendVerificationEmail(ctx, msg.Email, msg.Name, msg.Token, msg.BusinessName)
	case KindPublishedConfirmation:
		return o.notifier.SendPublishedConfirmation(ctx, msg.Email, msg.BusinessName)
	case KindLowRatingEmail:
		if msg.Alert == nil {
			return fmt.Errorf("%w: low rating email without alert", errUnknownKind)
		}
		return o.notifier.SendLowRatingAlert(ctx, msg.Email, msg.BusinessName, msg.Alert.NewAverage, msg.Alert.Submission)
	case KindLowRatingPush:
		if msg.Alert == nil {
			return fmt.Errorf("%w: low rating push without alert", errUnknownKind)
		}
		return o.realtime.PublishLowRatingAlert(ctx, msg.BusinessID, *msg.Alert)
	case KindNewReviewPush:
		if msg.Review == nil {
			return fmt.Errorf("%w: review push without payload", errUnknownKind)
		}
		return o.realtime.PublishNewReviewNotification(ctx, msg.BusinessID, *msg.Review)
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, msg.Kind)
	}
}
