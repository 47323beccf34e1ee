package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

func TestSubmitVerifyHappyPath(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	res, err := env.pipeline.Submit(ctx, validRequest("Ama@Example.com ", "203.0.113.7"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.VerificationRequired || res.State != models.StatePending {
		t.Fatalf("result = %+v, want pending with verification", res)
	}

	mails := env.pub.ofKind(KindVerificationEmail)
	if len(mails) != 1 {
		t.Fatalf("verification e-mails = %d, want 1", len(mails))
	}
	if mails[0].Email != "ama@example.com" || mails[0].BusinessName != "Corner Cafe" {
		t.Errorf("verification e-mail = %+v", mails[0])
	}

	snap, _ := env.pipeline.Rating(ctx, testBusinessID)
	if snap.Count != 0 {
		t.Errorf("pending submission counted: %+v", snap)
	}

	verified, err := env.pipeline.Verify(ctx, mails[0].Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.SubmissionID != res.SubmissionID {
		t.Errorf("verified %s, submitted %s", verified.SubmissionID, res.SubmissionID)
	}

	stored, err := env.repo.FindSubmissionByID(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("FindSubmissionByID: %v", err)
	}
	if stored.State != models.StatePublished || !stored.Verification.Verified || stored.Spam.IsSpam {
		t.Errorf("stored = state %s verified %v spam %v", stored.State, stored.Verification.Verified, stored.Spam.IsSpam)
	}

	snap, _ = env.pipeline.Rating(ctx, testBusinessID)
	if snap.Count != 1 || snap.Average != 4.0 {
		t.Errorf("snapshot = %+v, want 4.0/1", snap)
	}
	if n := len(env.pub.ofKind(KindPublishedConfirmation)); n != 1 {
		t.Errorf("published confirmations = %d, want 1", n)
	}
	if n := len(env.pub.ofKind(KindNewReviewPush)); n != 1 {
		t.Errorf("new review pushes = %d, want 1", n)
	}
	if n := len(env.pub.ofKind(KindLowRatingPush)); n != 0 {
		t.Errorf("low rating pushes = %d, want 0", n)
	}

	if _, err := env.pipeline.Verify(ctx, mails[0].Token); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("reused token error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestSubmitRejectsDuplicateWithoutWriting(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	if _, err := env.pipeline.Submit(ctx, validRequest("ama@example.com", "203.0.113.7")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	env.clock.Advance(time.Hour)
	_, err := env.pipeline.Submit(ctx, validRequest("ama@example.com", "198.51.100.1"))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("second Submit error = %v, want ErrDuplicateSubmission", err)
	}

	pending, _ := env.repo.ListByState(ctx, models.StatePending, 10)
	if len(pending) != 1 {
		t.Errorf("pending submissions = %d, want 1", len(pending))
	}

	env.clock.Advance(24 * time.Hour)
	if _, err := env.pipeline.Submit(ctx, validRequest("ama@example.com", "198.51.100.1")); err != nil {
		t.Errorf("Submit after the window: %v", err)
	}
}

func TestSubmitRateLimitsIP(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	ip := "203.0.113.50"

	for i, biz := range []string{"biz-1", "biz-2", "biz-3"} {
		req := validRequest("reviewer"+string(rune('a'+i))+"@example.com", ip)
		req.BusinessID = biz
		if _, err := env.pipeline.Submit(ctx, req); err != nil {
			t.Fatalf("Submit %d: %v", i+1, err)
		}
	}

	req := validRequest("reviewerd@example.com", ip)
	req.BusinessID = "biz-4"
	if _, err := env.pipeline.Submit(ctx, req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fourth Submit error = %v, want ErrRateLimited", err)
	}
}

func TestSpamIsFlaggedAndNeverPublished(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	req := validRequest("spam@example.com", "203.0.113.9")
	req.Rating = 5
	req.Body = "Buy now at http://spam.example and http://spam2.example, click here for free money!!"
	res, err := env.pipeline.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.State != models.StateFlagged || res.VerificationRequired {
		t.Fatalf("result = %+v, want flagged without verification", res)
	}
	if n := len(env.pub.ofKind(KindVerificationEmail)); n != 0 {
		t.Errorf("verification e-mails = %d, want 0", n)
	}

	stored, _ := env.repo.FindSubmissionByID(ctx, res.SubmissionID)
	if !stored.Spam.IsSpam || stored.Verification.Token != "" {
		t.Errorf("stored = %+v", stored)
	}
	if _, _, err := env.tokens.Reissue(ctx, res.SubmissionID); !errors.Is(err, ErrNotEligibleForResend) {
		t.Errorf("Reissue error = %v, want ErrNotEligibleForResend", err)
	}

	snap, _ := env.pipeline.Rating(ctx, testBusinessID)
	if snap.Count != 0 {
		t.Errorf("flagged submission counted: %+v", snap)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newPipelineEnv(t)
	tests := map[string]func(*SubmitRequest){
		"rating too high":  func(r *SubmitRequest) { r.Rating = 6 },
		"rating missing":   func(r *SubmitRequest) { r.Rating = 0 },
		"bad email":        func(r *SubmitRequest) { r.ReviewerEmail = "not-an-email" },
		"empty body":       func(r *SubmitRequest) { r.Body = "   " },
		"missing name":     func(r *SubmitRequest) { r.ReviewerName = "" },
		"bad media url":    func(r *SubmitRequest) { r.Media = []string{"::nope"} },
		"missing business": func(r *SubmitRequest) { r.BusinessID = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := validRequest("ama@example.com", "203.0.113.7")
			mutate(&req)
			_, err := env.pipeline.Submit(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmitUnknownBusiness(t *testing.T) {
	env := newPipelineEnv(t)
	req := validRequest("ama@example.com", "203.0.113.7")
	req.BusinessID = "nope"
	if _, err := env.pipeline.Submit(context.Background(), req); !errors.Is(err, ErrBusinessNotFound) {
		t.Errorf("error = %v, want ErrBusinessNotFound", err)
	}
}

func TestVerifyRaisesAlertOnLowRating(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	for i, r := range []int{5, 5, 5, 1} {
		publishRating(t, env.repo, "seed"+string(rune('0'+i)), r, testStart.Add(-48*time.Hour))
	}
	if _, _, err := env.aggregator.Recompute(ctx, testBusinessID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	req := validRequest("unhappy@example.com", "203.0.113.20")
	req.Rating = 1
	req.Body = "Cold food, waited forty minutes and nobody apologised for it."
	if _, err := env.pipeline.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.pipeline.Verify(ctx, env.lastToken(t)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	snap, _ := env.pipeline.Rating(ctx, testBusinessID)
	if snap.Average != 3.4 || snap.Count != 5 {
		t.Errorf("snapshot = %.1f/%d, want 3.4/5", snap.Average, snap.Count)
	}

	emails := env.pub.ofKind(KindLowRatingEmail)
	pushes := env.pub.ofKind(KindLowRatingPush)
	if len(emails) != 1 || len(pushes) != 1 {
		t.Fatalf("alert emails=%d pushes=%d, want 1 each", len(emails), len(pushes))
	}
	if emails[0].Email != testOwnerEmail {
		t.Errorf("alert sent to %q", emails[0].Email)
	}
	if a := pushes[0].Alert; a.PriorAverage != 4.0 || a.NewAverage != 3.4 {
		t.Errorf("alert = %+v", a)
	}
}

func TestVerifyAlertsWhenAverageRoundsToThreshold(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	publishRating(t, env.repo, "seed-five", 5, testStart.Add(-48*time.Hour))
	for i := 0; i < 22; i++ {
		publishRating(t, env.repo, fmt.Sprintf("seed-four-%d", i), 4, testStart.Add(-48*time.Hour))
	}
	if _, _, err := env.aggregator.Recompute(ctx, testBusinessID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	req := validRequest("meh@example.com", "203.0.113.21")
	req.Rating = 2
	req.Body = "Service was slow tonight and the soup arrived lukewarm."
	if _, err := env.pipeline.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.pipeline.Verify(ctx, env.lastToken(t)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// 95/24 = 3.958, shown as 4.0
	snap, _ := env.pipeline.Rating(ctx, testBusinessID)
	if snap.Average != 4.0 || snap.Count != 24 {
		t.Errorf("snapshot = %.1f/%d, want 4.0/24", snap.Average, snap.Count)
	}
	if n := len(env.pub.ofKind(KindLowRatingPush)); n != 1 {
		t.Errorf("low rating pushes = %d, want 1", n)
	}
}

func TestSubmitBusyWhenIPLockIsHeld(t *testing.T) {
	env := newPipelineEnvWith(t, PipelineConfig{LockWait: 20 * time.Millisecond})
	ctx := context.Background()

	release, err := env.locker.TryLock(ctx, "submit:ip:203.0.113.30", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	_, err = env.pipeline.Submit(ctx, validRequest("ama@example.com", "203.0.113.30"))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit error = %v, want ErrBusy", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("a held lock must not be reported as rate limiting")
	}

	release()
	if _, err := env.pipeline.Submit(ctx, validRequest("ama@example.com", "203.0.113.30")); err != nil {
		t.Errorf("Submit after release: %v", err)
	}
}

func TestResendVerificationRotatesToken(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	res, err := env.pipeline.Submit(ctx, validRequest("ama@example.com", "203.0.113.7"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first := env.lastToken(t)

	resend, err := env.pipeline.ResendVerification(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if resend.Email != "a***@example.com" {
		t.Errorf("masked email = %q", resend.Email)
	}
	second := env.lastToken(t)
	if first == second {
		t.Fatal("token was not rotated")
	}

	if _, err := env.pipeline.Verify(ctx, first); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("old token error = %v, want ErrInvalidOrExpiredToken", err)
	}
	if _, err := env.pipeline.Verify(ctx, second); err != nil {
		t.Errorf("new token: %v", err)
	}
	if _, err := env.pipeline.ResendVerification(ctx, res.SubmissionID); !errors.Is(err, ErrNotEligibleForResend) {
		t.Errorf("resend after publish error = %v, want ErrNotEligibleForResend", err)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"ama@example.com": "a***@example.com",
		"x@y.z":           "x***@y.z",
		"broken":          "broken",
	}
	for in, want := range tests {
		if got := maskEmail(in); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
