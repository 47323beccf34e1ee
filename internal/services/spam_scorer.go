package services

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"github.com/joshua-takyi/reviewtrust/internal/models"
)

const (
	ReasonVelocity       = "velocity"
	ReasonAttempts       = "attempts"
	ReasonLinks          = "links"
	ReasonRepetition     = "repetition"
	ReasonShouting       = "shouting"
	ReasonTooShort       = "too_short"
	ReasonTooLong        = "too_long"
	ReasonExtremeShort   = "extreme_short"
	ReasonSuspiciousName = "suspicious_name"
	ReasonKeyword        = "keyword"
)

var (
	linkPattern  = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
)

type SpamResult struct {
	Score   int
	IsSpam  bool
	Reasons []string
	// Degraded is set when a rule could not be evaluated and was skipped.
	Degraded bool
}

func (r SpamResult) Assessment() models.SpamAssessment {
	return models.SpamAssessment{
		Score:   r.Score,
		IsSpam:  r.IsSpam,
		Reasons: r.Reasons,
	}
}

type spamRule struct {
	reason string
	eval   func(s *models.Submission, act ActivityContext) int
}

// SpamScorer is a deterministic heuristic: the same submission and activity
// always produce the same result.
type SpamScorer struct {
	policy  SpamPolicy
	matcher *ahocorasick.Matcher
	rules   []spamRule
	logger  *slog.Logger
}

func NewSpamScorer(policy SpamPolicy, logger *slog.Logger) *SpamScorer {
	keywords := make([]string, 0, len(policy.Keywords))
	for _, k := range policy.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	sc := &SpamScorer{
		policy: policy,
		logger: logger,
	}
	if len(keywords) > 0 {
		sc.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	sc.rules = []spamRule{
		{ReasonVelocity, sc.velocity},
		{ReasonAttempts, sc.attempts},
		{ReasonLinks, sc.links},
		{ReasonRepetition, sc.repetition},
		{ReasonShouting, sc.shouting},
		{ReasonTooShort, sc.tooShort},
		{ReasonTooLong, sc.tooLong},
		{ReasonExtremeShort, sc.extremeShort},
		{ReasonSuspiciousName, sc.suspiciousName},
		{ReasonKeyword, sc.keywords},
	}
	return sc
}

func (sc *SpamScorer) Threshold() int {
	return sc.policy.Threshold
}

// Score never fails. A rule that cannot be evaluated contributes nothing.
func (sc *SpamScorer) Score(s *models.Submission, act ActivityContext) SpamResult {
	var res SpamResult
	for _, rule := range sc.rules {
		points, err := sc.evalRule(rule, s, act)
		if err != nil {
			res.Degraded = true
			sc.logger.Warn("Spam rule skipped",
				"rule", rule.reason,
				"submission_id", s.ID,
				"error", err,
			)
			continue
		}
		if points > 0 {
			res.Score += points
			res.Reasons = append(res.Reasons, rule.reason)
		}
	}

	if res.Score > 100 {
		res.Score = 100
	}
	res.IsSpam = res.Score >= sc.policy.Threshold
	return res
}

func (sc *SpamScorer) evalRule(rule spamRule, s *models.Submission, act ActivityContext) (points int, err error) {
	defer func() {
		if r := recover(); r != nil {
			points = 0
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	points = rule.eval(s, act)
	if points < 0 {
		points = 0
	}
	return points, nil
}

func (sc *SpamScorer) velocity(_ *models.Submission, act ActivityContext) int {
	if act.RecentFromFingerprint >= sc.policy.Limits.Velocity {
		return sc.policy.Weights.Velocity
	}
	return 0
}

func (sc *SpamScorer) attempts(s *models.Submission, act ActivityContext) int {
	n := s.AttemptCount
	if act.AttemptCount > n {
		n = act.AttemptCount
	}
	if n > sc.policy.Limits.Attempts {
		return sc.policy.Weights.Attempts
	}
	return 0
}

func (sc *SpamScorer) links(s *models.Submission, _ ActivityContext) int {
	n := len(linkPattern.FindAllString(s.Title+" "+s.Body, -1))
	if n > sc.policy.Limits.Links {
		return sc.policy.Weights.Links
	}
	return 0
}

func (sc *SpamScorer) repetition(s *models.Submission, _ ActivityContext) int {
	if longestRun(s.Body) >= sc.policy.Limits.RepeatRun {
		return sc.policy.Weights.Repetition
	}

	words := strings.Fields(strings.ToLower(s.Body))
	if len(words) < 6 {
		return 0
	}
	counts := make(map[string]int, len(words))
	top := 0
	for _, w := range words {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		counts[w]++
		if counts[w] > top {
			top = counts[w]
		}
	}
	if float64(top)/float64(len(words)) >= sc.policy.Limits.DominantWordRatio {
		return sc.policy.Weights.Repetition
	}
	return 0
}

func (sc *SpamScorer) shouting(s *models.Submission, _ ActivityContext) int {
	var letters, upper int
	for _, r := range s.Body {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters >= 20 && float64(upper)/float64(letters) >= sc.policy.Limits.ShoutingRatio {
		return sc.policy.Weights.Shouting
	}
	return 0
}

func (sc *SpamScorer) tooShort(s *models.Submission, _ ActivityContext) int {
	if utf8.RuneCountInString(strings.TrimSpace(s.Body)) < sc.policy.Limits.MinBodyLength {
		return sc.policy.Weights.TooShort
	}
	return 0
}

func (sc *SpamScorer) tooLong(s *models.Submission, _ ActivityContext) int {
	if utf8.RuneCountInString(s.Body) > sc.policy.Limits.MaxBodyLength {
		return sc.policy.Weights.TooLong
	}
	return 0
}

func (sc *SpamScorer) extremeShort(s *models.Submission, _ ActivityContext) int {
	if s.Rating != 1 && s.Rating != 5 {
		return 0
	}
	if utf8.RuneCountInString(strings.TrimSpace(s.Body)) < sc.policy.Limits.ExtremeBodyLength {
		return sc.policy.Weights.ExtremeShort
	}
	return 0
}

func (sc *SpamScorer) suspiciousName(s *models.Submission, _ ActivityContext) int {
	name := strings.ToLower(s.ReviewerName)
	if linkPattern.MatchString(name) || emailPattern.MatchString(name) {
		return sc.policy.Weights.SuspiciousName
	}

	var digits, others int
	for _, r := range name {
		switch {
		case unicode.IsDigit(r):
			digits++
		case !unicode.IsSpace(r):
			others++
		}
	}
	if digits > 0 && digits >= others {
		return sc.policy.Weights.SuspiciousName
	}
	return 0
}

func (sc *SpamScorer) keywords(s *models.Submission, _ ActivityContext) int {
	if sc.matcher == nil {
		return 0
	}
	text := strings.ToLower(s.Title + " " + s.Body + " " + s.ReviewerName)
	hits := len(sc.matcher.Match([]byte(text)))
	if limit := sc.policy.Limits.MaxKeywordHits; limit > 0 && hits > limit {
		hits = limit
	}
	return hits * sc.policy.Weights.Keyword
}

func longestRun(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if unicode.IsSpace(r) {
			prev, run = -1, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
