package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

var testStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by every component of one test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testStart}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []OutboundMessage
}

func (p *recordingPublisher) Publish(msg OutboundMessage) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofKind(kind MessageKind) []OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OutboundMessage
	for _, m := range p.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.msgs = nil
	p.mu.Unlock()
}

type pipelineEnv struct {
	repo       *models.MemoryRepo
	clock      *testClock
	pub        *recordingPublisher
	pipeline   *ReviewPipeline
	moderation *ModerationService
	tokens     *TokenManager
	aggregator *RatingAggregator
	locker     *LocalLocker
}

const (
	testBusinessID = "biz-1"
	testOwnerEmail = "owner@cafe.example"
)

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	return newPipelineEnvWith(t, PipelineConfig{})
}

func newPipelineEnvWith(t *testing.T, cfg PipelineConfig) *pipelineEnv {
	t.Helper()
	repo := models.NewMemoryRepo()
	repo.PutBusiness(models.Business{ID: testBusinessID, Name: "Corner Cafe", OwnerID: "owner-1", OwnerEmail: testOwnerEmail})
	repo.PutBusiness(models.Business{ID: "biz-2", Name: "Harbour Books", OwnerID: "owner-2"})
	repo.PutBusiness(models.Business{ID: "biz-3", Name: "Green Grocer", OwnerID: "owner-3"})
	repo.PutBusiness(models.Business{ID: "biz-4", Name: "Night Owl Bar", OwnerID: "owner-4"})

	clock := newTestClock()
	logger := discardLogger()
	pub := &recordingPublisher{}

	guard := NewDuplicateGuard(repo, 24*time.Hour, 3, clock.Now, logger)
	scorer := NewSpamScorer(DefaultSpamPolicy(), logger)
	tokens := NewTokenManager(repo, 24*time.Hour, clock.Now, logger)
	aggregator := NewRatingAggregator(repo, repo, clock.Now, logger)
	alerts := NewAlertDispatcher(pub, 4.0, 3, clock.Now, logger)
	locker := NewLocalLocker()

	return &pipelineEnv{
		repo:  repo,
		clock: clock,
		pub:   pub,
		pipeline: NewReviewPipeline(cfg, repo, repo, guard, scorer, tokens, aggregator, alerts, pub,
			locker, clock.Now, logger),
		moderation: NewModerationService(repo, repo, tokens, aggregator, pub, clock.Now, logger),
		tokens:     tokens,
		aggregator: aggregator,
		locker:     locker,
	}
}

func validRequest(email, ip string) SubmitRequest {
	return SubmitRequest{
		BusinessID:    testBusinessID,
		Rating:        4,
		Title:         "Lovely little place",
		Body:          "The flat white was excellent and the staff remembered my order.",
		ReviewerName:  "Ama",
		ReviewerEmail: email,
		IP:            ip,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64)",
	}
}

// lastToken returns the token of the most recent verification e-mail.
func (e *pipelineEnv) lastToken(t *testing.T) string {
	t.Helper()
	msgs := e.pub.ofKind(KindVerificationEmail)
	if len(msgs) == 0 {
		t.Fatal("no verification e-mail was published")
	}
	return msgs[len(msgs)-1].Token
}

// publishRating stores a published submission directly, bypassing the pipeline.
func publishRating(t *testing.T, repo *models.MemoryRepo, id string, rating int, at time.Time) {
	t.Helper()
	err := repo.CreateSubmission(context.Background(), &models.Submission{
		ID:           id,
		BusinessID:   testBusinessID,
		Rating:       rating,
		Body:         "seeded review body text",
		ReviewerName: "Seed",
		State:        models.StatePublished,
		Verification: models.Verification{Verified: true},
		CreatedAt:    at,
		UpdatedAt:    at,
	})
	if err != nil {
		t.Fatalf("seeding submission %s: %v", id, err)
	}
}
