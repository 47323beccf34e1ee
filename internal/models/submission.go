package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StatePublished SubmissionState = "published"
	StateFlagged   SubmissionState = "flagged"
	StateRejected  SubmissionState = "rejected"
	StateRemoved   SubmissionState = "removed"
)

// Verification binds a pending submission to its claimed email address.
// Token and ExpiresAt are cleared once the token is redeemed.
type Verification struct {
	Token      string     `bson:"token,omitempty" json:"-"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Verified   bool       `bson:"verified" json:"verified"`
	VerifiedAt *time.Time `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
}

type SpamAssessment struct {
	Score   int      `bson:"score" json:"score"`
	IsSpam  bool     `bson:"is_spam" json:"is_spam"`
	Reasons []string `bson:"reasons,omitempty" json:"reasons,omitempty"`
}

// Submission is an anonymous review candidate.
type Submission struct {
	ID            string          `bson:"_id" json:"id"`
	BusinessID    string          `bson:"business_id" json:"business_id"`
	Rating        int             `bson:"rating" json:"rating"`
	Title         string          `bson:"title,omitempty" json:"title,omitempty"`
	Body          string          `bson:"body" json:"body"`
	Media         []string        `bson:"media,omitempty" json:"media,omitempty"`
	ReviewerName  string          `bson:"reviewer_name" json:"reviewer_name"`
	ReviewerEmail string          `bson:"reviewer_email" json:"-"`
	SourceIP      string          `bson:"source_ip" json:"-"`
	DeviceKey     string          `bson:"device_key" json:"-"`
	UserAgent     string          `bson:"user_agent,omitempty" json:"-"`
	AttemptCount  int             `bson:"attempt_count" json:"attempt_count"`
	State         SubmissionState `bson:"state" json:"state"`
	Verification  Verification    `bson:"verification" json:"verification"`
	Spam          SpamAssessment  `bson:"spam" json:"spam"`
	CreatedAt     time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at" json:"updated_at"`
}

// HasLiveToken reports whether an unredeemed token is still valid at now.
func (s *Submission) HasLiveToken(now time.Time) bool {
	if s.Verification.Token == "" || s.Verification.ExpiresAt == nil {
		return false
	}
	return now.Before(*s.Verification.ExpiresAt)
}

func (s *Submission) Sanitize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Body = strings.TrimSpace(s.Body)
	s.ReviewerName = strings.Join(strings.Fields(s.ReviewerName), " ")
	s.ReviewerEmail = strings.ToLower(strings.TrimSpace(s.ReviewerEmail))

	media := make([]string, 0, len(s.Media))
	seen := make(map[string]struct{}, len(s.Media))
	for _, m := range s.Media {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		media = append(media, m)
	}
	s.Media = media
}

// Snippet returns at most n runes of the body, cut on a word boundary when possible.
func (s *Submission) Snippet(n int) string {
	if utf8.RuneCountInString(s.Body) <= n {
		return s.Body
	}
	runes := []rune(s.Body)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// Summary is the part of a submission shared with the business owner.
func (s *Submission) Summary(snippetLen int) SubmissionSummary {
	return SubmissionSummary{
		SubmissionID: s.ID,
		Rating:       s.Rating,
		Title:        s.Title,
		Snippet:      s.Snippet(snippetLen),
		ReviewerName: s.ReviewerName,
	}
}

func (s *Submission) Clone() *Submission {
	c := *s
	c.Media = append([]string(nil), s.Media...)
	c.Spam.Reasons = append([]string(nil), s.Spam.Reasons...)
	if s.Verification.ExpiresAt != nil {
		t := *s.Verification.ExpiresAt
		c.Verification.ExpiresAt = &t
	}
	if s.Verification.VerifiedAt != nil {
		t := *s.Verification.VerifiedAt
		c.Verification.VerifiedAt = &t
	}
	return &c
}

type SubmissionSummary struct {
	SubmissionID string `json:"submission_id"`
	Rating       int    `json:"rating"`
	Title        string `json:"title,omitempty"`
	Snippet      string `json:"snippet"`
	ReviewerName string `json:"reviewer_name"`
}
