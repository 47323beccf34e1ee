package models

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-process SubmissionStore, RatingSnapshotStore and
// BusinessDirectory. Every conditional update runs under one mutex, which
// gives the same check-and-set guarantees as the Mongo filters.
type MemoryRepo struct {
	mu          sync.Mutex
	submissions map[string]*Submission
	tokens      map[string]string
	snapshots   map[string]BusinessRatingSnapshot
	businesses  map[string]Business
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		submissions: make(map[string]*Submission),
		tokens:      make(map[string]string),
		snapshots:   make(map[string]BusinessRatingSnapshot),
		businesses:  make(map[string]Business),
	}
}

func (m *MemoryRepo) PutBusiness(b Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
}

func (m *MemoryRepo) GetBusiness(ctx context.Context, id string) (*Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryRepo) CreateSubmission(ctx context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[s.ID]; ok {
		return ErrConflict
	}
	if tok := s.Verification.Token; tok != "" {
		if _, ok := m.tokens[tok]; ok {
			return ErrConflict
		}
		m.tokens[tok] = s.ID
	}
	m.submissions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryRepo) FindSubmissionByID(ctx context.Context, id string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepo) FindSubmissionByToken(ctx context.Context, token string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return m.submissions[id].Clone(), nil
}

func (m *MemoryRepo) FindRecentByFingerprint(ctx context.Context, q FingerprintQuery) ([]*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Submission
	for _, s := range m.submissions {
		if s.BusinessID != q.BusinessID || s.CreatedAt.Before(q.Since) {
			continue
		}
		if len(q.States) > 0 && !containsState(q.States, s.State) {
			continue
		}
		if (q.Email != "" && s.ReviewerEmail == q.Email) ||
			(q.IP != "" && s.SourceIP == q.IP) ||
			(q.DeviceKey != "" && s.DeviceKey == q.DeviceKey) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) CountByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.submissions {
		if s.SourceIP == ip && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) UpdateState(ctx context.Context, id string, from []SubmissionState, to SubmissionState, now time.Time) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok || !containsState(from, s.State) {
		return nil, ErrConflict
	}
	m.clearToken(s)
	s.State = to
	s.UpdatedAt = now
	return s.Clone(), nil
}

func (m *MemoryRepo) UpdateVerification(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok || s.State != StatePending || s.Verification.Verified || s.Spam.IsSpam {
		return nil, ErrConflict
	}
	if _, taken := m.tokens[token]; taken {
		return nil, ErrConflict
	}
	m.setToken(s, token, expiresAt)
	s.UpdatedAt = now
	return s.Clone(), nil
}

func (m *MemoryRepo) RedeemToken(ctx context.Context, token string, now time.Time) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tokens[token]
	if !ok {
		return nil, ErrConflict
	}
	s := m.submissions[id]
	if s.State != StatePending || s.Verification.Verified || s.Spam.IsSpam || !s.HasLiveToken(now) {
		return nil, ErrConflict
	}

	m.clearToken(s)
	verifiedAt := now
	s.Verification.Verified = true
	s.Verification.VerifiedAt = &verifiedAt
	s.State = StatePublished
	s.UpdatedAt = now
	return s.Clone(), nil
}

func (m *MemoryRepo) ReleaseFlagged(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok || s.State != StateFlagged {
		return nil, ErrConflict
	}
	if _, taken := m.tokens[token]; taken {
		return nil, ErrConflict
	}
	s.State = StatePending
	s.Spam.IsSpam = false
	m.setToken(s, token, expiresAt)
	s.UpdatedAt = now
	return s.Clone(), nil
}

func (m *MemoryRepo) ListByState(ctx context.Context, state SubmissionState, limit int) ([]*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Submission
	for _, s := range m.submissions {
		if s.State == state {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepo) SumPublishedRatings(ctx context.Context, businessID string) (RatingTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var t RatingTotals
	for _, s := range m.submissions {
		if s.BusinessID == businessID && s.State == StatePublished {
			t.Sum += int64(s.Rating)
			t.Count++
		}
	}
	return t, nil
}

func (m *MemoryRepo) GetSnapshot(ctx context.Context, businessID string) (*BusinessRatingSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[businessID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MemoryRepo) UpsertSnapshot(ctx context.Context, snap *BusinessRatingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.BusinessID] = *snap
	return nil
}

func (m *MemoryRepo) setToken(s *Submission, token string, expiresAt time.Time) {
	m.clearToken(s)
	exp := expiresAt
	s.Verification.Token = token
	s.Verification.ExpiresAt = &exp
	m.tokens[token] = s.ID
}

func (m *MemoryRepo) clearToken(s *Submission) {
	if s.Verification.Token != "" {
		delete(m.tokens, s.Verification.Token)
	}
	s.Verification.Token = ""
	s.Verification.ExpiresAt = nil
}

func containsState(states []SubmissionState, s SubmissionState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
