package service

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/shadowgate/internal/models"
	"github.com/noah-isme/shadowgate/pkg/config"
	apperrors "github.com/noah-isme/shadowgate/pkg/errors"
)

// ConditionTimeoutCeiling is the hard upper bound on how long the sampler
// waits for a user-supplied condition. Longer timeouts are clamped, never
// honoured, because the condition runs on the primary request path.
const ConditionTimeoutCeiling = 100 * time.Millisecond

// Condition decides per request whether it may be shadowed. Implementations
// must be side-effect-free and fast; the sampler only waits for the clamped
// condition timeout and abandons the call afterwards, so a slow condition
// keeps running in the background until it returns on its own.
type Condition func(*http.Request) bool

// IdentifierExtractor derives the stable-sampling identifier from a request.
// Returning an empty string means "no identifier". A panic is recovered and
// treated the same way.
type IdentifierExtractor func(*http.Request) string

// HashScope combines the extracted identifier with request context (for
// example the path) so the stable decision can vary per scope while staying
// deterministic for the same (identifier, scope) pair.
type HashScope func(*http.Request, string) string

// RulesetBuilder collects shadow-traffic rules before they are frozen.
// Finalize validates the builder and produces the immutable Ruleset; it may
// succeed at most once per builder.
type RulesetBuilder struct {
	Enabled                   bool
	TargetURL                 string          `validate:"required_if=Enabled true,omitempty,url"`
	SampleRate                float64         `validate:"gte=0,lte=1"`
	Sampler                   models.Strategy `validate:"omitempty,oneof=random stable_hash"`
	SamplingKey               string
	IdentifierExtractor       IdentifierExtractor
	HashScope                 HashScope
	OnlyMethods               []string
	OnlyPaths                 []string
	Condition                 Condition
	ConditionTimeout          time.Duration `validate:"gt=0"`
	ConditionFailureThreshold int           `validate:"gte=1"`
	ConditionCircuitCooldown  time.Duration `validate:"gte=0"`
	ScrubHeaders              []string
	ScrubJSONFields           []string
	ScrubMask                 string
	DiffEnabled               bool
	DiffIgnoreJSONPaths       []string
	LogRateLimitPerSecond     int

	finalized bool
}

// NewRulesetBuilder seeds a builder from the raw environment configuration.
// Function-typed rules (condition, extractor, scope) cannot come from the
// environment and are set on the builder by the embedding application.
func NewRulesetBuilder(cfg config.ShadowConfig) *RulesetBuilder {
	return &RulesetBuilder{
		Enabled:                   cfg.Enabled,
		TargetURL:                 cfg.TargetURL,
		SampleRate:                cfg.SampleRate,
		Sampler:                   models.Strategy(cfg.Sampler),
		SamplingKey:               cfg.SamplingKey,
		OnlyMethods:               cfg.OnlyMethods,
		OnlyPaths:                 cfg.OnlyPaths,
		ConditionTimeout:          cfg.ConditionTimeout,
		ConditionFailureThreshold: cfg.ConditionFailureThreshold,
		ConditionCircuitCooldown:  cfg.ConditionCircuitCooldown,
		ScrubHeaders:              cfg.ScrubHeaders,
		ScrubJSONFields:           cfg.ScrubJSONFields,
		ScrubMask:                 cfg.ScrubMask,
		DiffEnabled:               cfg.DiffEnabled,
		DiffIgnoreJSONPaths:       cfg.DiffIgnoreJSONPaths,
		LogRateLimitPerSecond:     cfg.LogRateLimitPerSecond,
	}
}

// pathRule matches a request path either literally or, when the pattern
// compiles, as a regular expression.
type pathRule struct {
	raw string
	re  *regexp.Regexp
}

func (p pathRule) matches(path string) bool {
	if p.raw == path {
		return true
	}
	return p.re != nil && p.re.MatchString(path)
}

// Ruleset is the finalized, immutable rule bag shared across the engine. It
// deliberately exposes no setters; build a new one through RulesetBuilder to
// change behaviour.
type Ruleset struct {
	enabled                   bool
	targetURL                 string
	sampleRate                float64
	sampler                   models.Strategy
	samplingKey               string
	identifierExtractor       IdentifierExtractor
	hashScope                 HashScope
	onlyMethods               []string
	onlyPaths                 []pathRule
	condition                 Condition
	conditionTimeout          time.Duration
	conditionFailureThreshold int
	conditionCircuitCooldown  time.Duration
	scrubHeaders              map[string]struct{}
	scrubJSONFields           map[string]struct{}
	scrubMask                 string
	diffEnabled               bool
	diffIgnorePaths           [][]string
	logRateLimitPerSecond     int
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Finalize validates the builder and freezes it into a Ruleset. Only one
// Finalize may succeed per builder; later calls fail with ErrRulesetFinal.
func (b *RulesetBuilder) Finalize() (*Ruleset, error) {
	if b.finalized {
		return nil, apperrors.ErrRulesetFinal
	}

	if err := validate.Struct(b); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidRuleset.Code, apperrors.ErrInvalidRuleset.Status, "ruleset validation failed")
	}

	timeout := b.ConditionTimeout
	if timeout > ConditionTimeoutCeiling {
		timeout = ConditionTimeoutCeiling
	}

	sampler := b.Sampler
	if sampler == "" {
		sampler = models.StrategyRandom
	}

	mask := b.ScrubMask
	if mask == "" {
		mask = "[FILTERED]"
	}

	methods := make([]string, 0, len(b.OnlyMethods))
	for _, m := range b.OnlyMethods {
		trimmed := strings.ToUpper(strings.TrimSpace(m))
		if trimmed != "" {
			methods = append(methods, trimmed)
		}
	}

	paths := make([]pathRule, 0, len(b.OnlyPaths))
	for _, p := range b.OnlyPaths {
		rule := pathRule{raw: p}
		if re, err := regexp.Compile(p); err == nil {
			rule.re = re
		}
		paths = append(paths, rule)
	}

	headerSet := make(map[string]struct{}, len(b.ScrubHeaders))
	for _, h := range b.ScrubHeaders {
		headerSet[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	fieldSet := make(map[string]struct{}, len(b.ScrubJSONFields))
	for _, f := range b.ScrubJSONFields {
		fieldSet[f] = struct{}{}
	}

	ignorePaths := make([][]string, 0, len(b.DiffIgnoreJSONPaths))
	for _, p := range b.DiffIgnoreJSONPaths {
		if p == "" {
			continue
		}
		ignorePaths = append(ignorePaths, strings.Split(p, "."))
	}

	b.finalized = true

	return &Ruleset{
		enabled:                   b.Enabled,
		targetURL:                 strings.TrimRight(b.TargetURL, "/"),
		sampleRate:                b.SampleRate,
		sampler:                   sampler,
		samplingKey:               b.SamplingKey,
		identifierExtractor:       b.IdentifierExtractor,
		hashScope:                 b.HashScope,
		onlyMethods:               methods,
		onlyPaths:                 paths,
		condition:                 b.Condition,
		conditionTimeout:          timeout,
		conditionFailureThreshold: b.ConditionFailureThreshold,
		conditionCircuitCooldown:  b.ConditionCircuitCooldown,
		scrubHeaders:              headerSet,
		scrubJSONFields:           fieldSet,
		scrubMask:                 mask,
		diffEnabled:               b.DiffEnabled,
		diffIgnorePaths:           ignorePaths,
		logRateLimitPerSecond:     b.LogRateLimitPerSecond,
	}, nil
}

// Enabled reports whether shadowing is switched on at all.
func (r *Ruleset) Enabled() bool { return r.enabled }

// TargetURL returns the shadow target base URL without a trailing slash.
func (r *Ruleset) TargetURL() string { return r.targetURL }

// DiffEnabled reports whether response comparison is switched on.
func (r *Ruleset) DiffEnabled() bool { return r.diffEnabled }

func (r *Ruleset) methodAllowed(method string) bool {
	if len(r.onlyMethods) == 0 {
		return true
	}
	upper := strings.ToUpper(method)
	for _, m := range r.onlyMethods {
		if m == upper {
			return true
		}
	}
	return false
}

func (r *Ruleset) pathAllowed(path string) bool {
	if len(r.onlyPaths) == 0 {
		return true
	}
	for _, rule := range r.onlyPaths {
		if rule.matches(path) {
			return true
		}
	}
	return false
}
