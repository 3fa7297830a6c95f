package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// FactorKind selects the function that computes a factor
type FactorKind string

const (
	FactorHitRate        FactorKind = "hit_rate"
	FactorEdge           FactorKind = "edge"
	FactorMatchup        FactorKind = "matchup"
	FactorStreak         FactorKind = "streak"
	FactorOddsValue      FactorKind = "odds_value"
	FactorSampleSize     FactorKind = "sample_size"
	FactorStatBoost      FactorKind = "stat_boost"
	FactorTeammateImpact FactorKind = "teammate_impact"
)

// Built-in profile names
const (
	ProfileHitRate      = "hit_rate"
	ProfileInjuryImpact = "injury_impact"
)

// FactorSpec is one weighted factor in a profile
type FactorSpec struct {
	Name      string     `yaml:"name"`
	Kind      FactorKind `yaml:"kind"`
	MaxPoints float64    `yaml:"max_points"`
}

// GradeBand assigns Grade to scores >= Min
type GradeBand struct {
	Grade models.Grade `yaml:"grade"`
	Min   float64      `yaml:"min"`
}

// Profile is a named set of factor weights and grade thresholds.
// Grades are ordered from the highest band down; scores below the last
// band grade as C.
type Profile struct {
	Name    string       `yaml:"name"`
	Factors []FactorSpec `yaml:"factors"`
	Grades  []GradeBand  `yaml:"grades"`
}

// HitRateProfile is used by the hit-rate sheet
func HitRateProfile() Profile {
	return Profile{
		Name: ProfileHitRate,
		Factors: []FactorSpec{
			{Name: "Hit Rate", Kind: FactorHitRate, MaxPoints: 40},
			{Name: "Edge", Kind: FactorEdge, MaxPoints: 20},
			{Name: "Matchup", Kind: FactorMatchup, MaxPoints: 20},
			{Name: "Hit Streak", Kind: FactorStreak, MaxPoints: 10},
			{Name: "Odds Value", Kind: FactorOddsValue, MaxPoints: 10},
		},
		Grades: []GradeBand{
			{Grade: models.GradeAPlus, Min: 90},
			{Grade: models.GradeA, Min: 80},
			{Grade: models.GradeBPlus, Min: 70},
			{Grade: models.GradeB, Min: 60},
		},
	}
}

// InjuryImpactProfile is used by the injury-impact sheet.
// Its grade cut points differ from the hit-rate profile on purpose.
func InjuryImpactProfile() Profile {
	return Profile{
		Name: ProfileInjuryImpact,
		Factors: []FactorSpec{
			{Name: "Hit Rate", Kind: FactorHitRate, MaxPoints: 35},
			{Name: "Sample Size", Kind: FactorSampleSize, MaxPoints: 25},
			{Name: "Stat Boost", Kind: FactorStatBoost, MaxPoints: 20},
			{Name: "Teammate Impact", Kind: FactorTeammateImpact, MaxPoints: 20},
		},
		Grades: []GradeBand{
			{Grade: models.GradeAPlus, Min: 85},
			{Grade: models.GradeA, Min: 75},
			{Grade: models.GradeBPlus, Min: 65},
			{Grade: models.GradeB, Min: 55},
		},
	}
}

// Validate checks that factor max points sum to 100 and grade bands descend
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if len(p.Factors) == 0 {
		return fmt.Errorf("profile %s: no factors", p.Name)
	}

	total := 0.0
	for _, f := range p.Factors {
		if _, ok := factorFuncs[f.Kind]; !ok {
			return fmt.Errorf("profile %s: unknown factor kind %q", p.Name, f.Kind)
		}
		if f.MaxPoints <= 0 {
			return fmt.Errorf("profile %s: factor %s max_points must be > 0", p.Name, f.Name)
		}
		total += f.MaxPoints
	}
	if math.Abs(total-MaxScore) > 1e-9 {
		return fmt.Errorf("profile %s: factor max points sum to %.2f, want %.0f", p.Name, total, MaxScore)
	}

	prev := math.Inf(1)
	for _, g := range p.Grades {
		if g.Min <= 0 || g.Min > MaxScore {
			return fmt.Errorf("profile %s: grade %s threshold %.2f out of range", p.Name, g.Grade, g.Min)
		}
		if g.Min >= prev {
			return fmt.Errorf("profile %s: grade thresholds must strictly descend", p.Name)
		}
		prev = g.Min
	}

	return nil
}

// Grade maps a score to a letter grade using this profile's thresholds
func (p Profile) Grade(value float64) models.Grade {
	for _, band := range p.Grades {
		if value >= band.Min {
			return band.Grade
		}
	}
	return models.GradeC
}

// Profiles is a registry of profiles by name
type Profiles map[string]Profile

// DefaultProfiles returns the built-in profiles
func DefaultProfiles() Profiles {
	return Profiles{
		ProfileHitRate:      HitRateProfile(),
		ProfileInjuryImpact: InjuryImpactProfile(),
	}
}

// Get looks up a profile by name
func (p Profiles) Get(name string) (Profile, bool) {
	profile, ok := p[name]
	return profile, ok
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads profile overrides from a YAML file on top of the
// built-ins. An empty path or a missing file yields the built-ins.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid profile in %s: %w", path, err)
		}
		profiles[p.Name] = p
	}

	return profiles, nil
}
