// Package config loads the kernel's named, defaulted, range-validated
// thresholds (the "magic numbers" design note calls out: τ_drift, ε, M, N, W,
// diminishing-returns, max-parallel-children, and friends) plus the
// inference-provider credentials the reference collaborators need.
//
// Thresholds are resolved once at process start via viper: a YAML file
// supplies overrides, environment variables (auto-bound, upper-cased, "_"
// separated) take precedence over the file, and compiled-in defaults apply
// when neither is set. Credentials are loaded from a .env file first via
// godotenv, the same way the inference clients' upstream did it, so that
// viper's environment binding sees them already in the process environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Thresholds holds every named configuration key the Cognitive Cycle,
// Delegation Protocol, Resource Governor, and Self-Healing Loop consult.
type Thresholds struct {
	// DriftTau is τ_drift: the semantic-distance threshold beyond which the
	// Monitor phase flags drift between recent step goals and focus.
	DriftTau float64 `mapstructure:"drift_tau"`

	// StagnationEpsilon is ε: confidence-variance floor below which the
	// Monitor phase flags stagnation even without a repeating outcome hash.
	StagnationEpsilon float64 `mapstructure:"stagnation_epsilon"`

	// DriftWindowN is N: how many recent step goals the drift check considers.
	DriftWindowN int `mapstructure:"drift_window_n"`

	// StagnationWindowM is M: how many recent step outcomes the repeating-cycle
	// check hashes.
	StagnationWindowM int `mapstructure:"stagnation_window_m"`

	// JaccardWindowW is W: the sliding-window size for the fact-bag Jaccard
	// stagnation comparison.
	JaccardWindowW int `mapstructure:"jaccard_window_w"`

	// JaccardThreshold is the similarity above which two consecutive fact-bag
	// windows are considered stagnant (spec default 0.95).
	JaccardThreshold float64 `mapstructure:"jaccard_threshold"`

	// CompressionAgeK is K: the fact/hypothesis age (in working-memory steps)
	// beyond which the compression policy may act.
	CompressionAgeK int64 `mapstructure:"compression_age_k"`

	// SafetyFloor is the remaining-budget floor can_afford_step checks against.
	SafetyFloor int `mapstructure:"safety_floor"`

	// MinHealReserve is the remaining budget (in absolute units) required to
	// enter the Heal phase or pass can_heal(); the Heal phase itself also
	// enforces the "25% of initial budget, whichever is larger" rule inline.
	MinHealReserve int `mapstructure:"min_heal_reserve"`

	// PerChildMinimum is the smallest sub-budget can_delegate() will allow a
	// single child to receive.
	PerChildMinimum int `mapstructure:"per_child_minimum"`

	// MaxParallelChildren bounds how many SubTasks may exist in total across
	// a decomposition (spec default 8).
	MaxParallelChildren int `mapstructure:"max_parallel_children"`

	// MaxReviewRounds bounds review rounds per child (spec default 2).
	MaxReviewRounds int `mapstructure:"max_review_rounds"`

	// DiminishingReturnsThreshold is the improvement-ratio floor below which
	// the Convergence Detector stops healing (spec default 0.1).
	DiminishingReturnsThreshold float64 `mapstructure:"diminishing_returns_threshold"`

	// MaxCascadeDepthLimit bounds how many cascade generations the healing
	// loop will chase before stopping regardless of remaining budget.
	MaxCascadeDepthLimit int `mapstructure:"max_cascade_depth_limit"`

	// MaxHealIterationsStaff / MaxHealIterationsManager are the per-level
	// max_heal_iterations values (spec defaults: 1 for staff-and-below, 3 for
	// manager-and-above).
	MaxHealIterationsStaff   int `mapstructure:"max_heal_iterations_staff"`
	MaxHealIterationsManager int `mapstructure:"max_heal_iterations_manager"`

	// WindDownSeconds is the bounded wind-down window a cancelled cell has to
	// emit a partial envelope (spec default 5s).
	WindDownSeconds int `mapstructure:"wind_down_seconds"`

	// DefaultToolTimeoutSeconds is the per-tool-call timeout absent a
	// tool-specific override (spec default 30s).
	DefaultToolTimeoutSeconds int `mapstructure:"default_tool_timeout_seconds"`

	// MailboxCapacity bounds each (cell_id, channel) mailbox (spec default 128).
	MailboxCapacity int `mapstructure:"mailbox_capacity"`

	// WorkerPoolMultiplier sizes the shared worker pool as cores × multiplier.
	WorkerPoolMultiplier int `mapstructure:"worker_pool_multiplier"`

	// WorkerPoolCap caps the worker pool regardless of detected core count.
	WorkerPoolCap int `mapstructure:"worker_pool_cap"`

	// LateralHealingEnabled gates peer-to-peer HEAL_REQUEST/HEAL_RESULT.
	// Resolved open question: gated off by default.
	LateralHealingEnabled bool `mapstructure:"lateral_healing_enabled"`

	// SuccessCriterionOverlapThreshold is the lexical-overlap floor above
	// which the Monitor phase considers a step's success_criterion satisfied
	// by the facts accumulated so far, short-circuiting the remaining steps.
	SuccessCriterionOverlapThreshold float64 `mapstructure:"success_criterion_overlap_threshold"`
}

// thresholdRange describes the allowed [min, max] for one float/int key, used
// by Validate to reject out-of-range configuration rather than clamp it.
type thresholdRange struct {
	name     string
	min, max float64
	value    float64
}

// defaults are the compiled-in values used when neither the YAML file nor an
// environment variable supplies an override.
func setDefaults(v *viper.Viper) {
	v.SetDefault("drift_tau", 0.6)
	v.SetDefault("stagnation_epsilon", 0.05)
	v.SetDefault("drift_window_n", 5)
	v.SetDefault("stagnation_window_m", 4)
	v.SetDefault("jaccard_window_w", 3)
	v.SetDefault("jaccard_threshold", 0.95)
	v.SetDefault("compression_age_k", 20)
	v.SetDefault("safety_floor", 200)
	v.SetDefault("min_heal_reserve", 1000)
	v.SetDefault("per_child_minimum", 500)
	v.SetDefault("max_parallel_children", 8)
	v.SetDefault("max_review_rounds", 2)
	v.SetDefault("diminishing_returns_threshold", 0.1)
	v.SetDefault("max_cascade_depth_limit", 3)
	v.SetDefault("max_heal_iterations_staff", 1)
	v.SetDefault("max_heal_iterations_manager", 3)
	v.SetDefault("wind_down_seconds", 5)
	v.SetDefault("default_tool_timeout_seconds", 30)
	v.SetDefault("mailbox_capacity", 128)
	v.SetDefault("worker_pool_multiplier", 2)
	v.SetDefault("worker_pool_cap", 64)
	v.SetDefault("lateral_healing_enabled", false)
	v.SetDefault("success_criterion_overlap_threshold", 0.3)
}

// Load resolves Thresholds from (in ascending priority) compiled-in defaults,
// an optional YAML file at path (pass "" to skip), and environment variables
// prefixed KERNEL_ (e.g. KERNEL_DRIFT_TAU=0.7). envFile, if non-empty, is
// loaded via godotenv before the environment is read, mirroring the
// credential-loading idiom the reference inference clients use.
func Load(path, envFile string) (Thresholds, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Thresholds{}, fmt.Errorf("config: load env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("kernel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Thresholds{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var parsed map[string]any
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return Thresholds{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := v.MergeConfigMap(parsed); err != nil {
			return Thresholds{}, fmt.Errorf("config: merge %s: %w", path, err)
		}
	}

	var t Thresholds
	if err := v.Unmarshal(&t); err != nil {
		return Thresholds{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(t); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// Validate rejects configuration outside the documented allowed ranges
// instead of silently clamping it.
func Validate(t Thresholds) error {
	ranges := []thresholdRange{
		{"drift_tau", 0, 1, t.DriftTau},
		{"stagnation_epsilon", 0, 1, t.StagnationEpsilon},
		{"drift_window_n", 1, 1000, float64(t.DriftWindowN)},
		{"stagnation_window_m", 1, 1000, float64(t.StagnationWindowM)},
		{"jaccard_window_w", 1, 1000, float64(t.JaccardWindowW)},
		{"jaccard_threshold", 0, 1, t.JaccardThreshold},
		{"compression_age_k", 0, 1_000_000, float64(t.CompressionAgeK)},
		{"safety_floor", 0, 1_000_000_000, float64(t.SafetyFloor)},
		{"min_heal_reserve", 0, 1_000_000_000, float64(t.MinHealReserve)},
		{"per_child_minimum", 0, 1_000_000_000, float64(t.PerChildMinimum)},
		{"max_parallel_children", 1, 1000, float64(t.MaxParallelChildren)},
		{"max_review_rounds", 0, 100, float64(t.MaxReviewRounds)},
		{"diminishing_returns_threshold", 0, 1, t.DiminishingReturnsThreshold},
		{"max_cascade_depth_limit", 0, 1000, float64(t.MaxCascadeDepthLimit)},
		{"max_heal_iterations_staff", 0, 1000, float64(t.MaxHealIterationsStaff)},
		{"max_heal_iterations_manager", 0, 1000, float64(t.MaxHealIterationsManager)},
		{"wind_down_seconds", 0, 3600, float64(t.WindDownSeconds)},
		{"default_tool_timeout_seconds", 0, 3600, float64(t.DefaultToolTimeoutSeconds)},
		{"mailbox_capacity", 1, 1_000_000, float64(t.MailboxCapacity)},
		{"worker_pool_multiplier", 1, 64, float64(t.WorkerPoolMultiplier)},
		{"worker_pool_cap", 1, 100_000, float64(t.WorkerPoolCap)},
		{"success_criterion_overlap_threshold", 0, 1, t.SuccessCriterionOverlapThreshold},
	}
	for _, r := range ranges {
		if r.value < r.min || r.value > r.max {
			return fmt.Errorf("config: %s=%v out of range [%v, %v]", r.name, r.value, r.min, r.max)
		}
	}
	return nil
}

// MaxHealIterations returns the per-level healing iteration cap.
func (t Thresholds) MaxHealIterations(manager bool) int {
	if manager {
		return t.MaxHealIterationsManager
	}
	return t.MaxHealIterationsStaff
}
