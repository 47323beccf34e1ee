package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SpamWeights struct {
	Velocity       int `yaml:"velocity"`
	Attempts       int `yaml:"attempts"`
	Links          int `yaml:"links"`
	Repetition     int `yaml:"repetition"`
	Shouting       int `yaml:"shouting"`
	TooShort       int `yaml:"too_short"`
	TooLong        int `yaml:"too_long"`
	ExtremeShort   int `yaml:"extreme_short"`
	SuspiciousName int `yaml:"suspicious_name"`
	Keyword        int `yaml:"keyword"`
}

type SpamLimits struct {
	Velocity          int     `yaml:"velocity"`
	Attempts          int     `yaml:"attempts"`
	Links             int     `yaml:"links"`
	RepeatRun         int     `yaml:"repeat_run"`
	DominantWordRatio float64 `yaml:"dominant_word_ratio"`
	ShoutingRatio     float64 `yaml:"shouting_ratio"`
	MinBodyLength     int     `yaml:"min_body_length"`
	MaxBodyLength     int     `yaml:"max_body_length"`
	ExtremeBodyLength int     `yaml:"extreme_body_length"`
	MaxKeywordHits    int     `yaml:"max_keyword_hits"`
}

// SpamPolicy holds the scoring weights. The numbers are tuning knobs, not
// constants of the algorithm; operators override them with a YAML file.
type SpamPolicy struct {
	Threshold int         `yaml:"threshold"`
	Weights   SpamWeights `yaml:"weights"`
	Limits    SpamLimits  `yaml:"limits"`
	Keywords  []string    `yaml:"keywords"`
}

func DefaultSpamPolicy() SpamPolicy {
	return SpamPolicy{
		Threshold: 70,
		Weights: SpamWeights{
			Velocity:       25,
			Attempts:       15,
			Links:          30,
			Repetition:     20,
			Shouting:       15,
			TooShort:       15,
			TooLong:        10,
			ExtremeShort:   25,
			SuspiciousName: 20,
			Keyword:        20,
		},
		Limits: SpamLimits{
			Velocity:          2,
			Attempts:          2,
			Links:             1,
			RepeatRun:         6,
			DominantWordRatio: 0.5,
			ShoutingRatio:     0.7,
			MinBodyLength:     10,
			MaxBodyLength:     3000,
			ExtremeBodyLength: 25,
			MaxKeywordHits:    2,
		},
		Keywords: []string{
			"buy now",
			"click here",
			"free money",
			"work from home",
			"limited offer",
			"casino",
			"crypto giveaway",
			"cheap pills",
			"promo code",
			"visit my profile",
		},
	}
}

// LoadSpamPolicy overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadSpamPolicy(path string) (SpamPolicy, error) {
	policy := DefaultSpamPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("reading spam policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parsing spam policy %s: %w", path, err)
	}
	if err := policy.validate(); err != nil {
		return policy, fmt.Errorf("spam policy %s: %w", path, err)
	}
	return policy, nil
}

func (p SpamPolicy) validate() error {
	if p.Threshold <= 0 || p.Threshold > 100 {
		return fmt.Errorf("threshold must be within 1..100, got %d", p.Threshold)
	}
	if p.Limits.ShoutingRatio <= 0 || p.Limits.ShoutingRatio > 1 {
		return fmt.Errorf("limits.shouting_ratio must be within (0, 1]")
	}
	if p.Limits.DominantWordRatio <= 0 || p.Limits.DominantWordRatio > 1 {
		return fmt.Errorf("limits.dominant_word_ratio must be within (0, 1]")
	}
	return nil
}
