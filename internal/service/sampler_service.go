package service

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/shadowgate/internal/models"
	"github.com/noah-isme/shadowgate/pkg/middleware/requestid"
)

// SamplerService decides per request whether it should be shadowed. The
// checks run in increasing cost order and short-circuit on the first reject.
type SamplerService struct {
	state   *RuntimeState
	metrics *MetricsService
	logger  *zap.Logger

	// draw is the uniform [0,1) source for the random strategy,
	// injectable in tests.
	draw func() float64
}

// NewSamplerService builds a sampler over the shared runtime state.
func NewSamplerService(state *RuntimeState, metrics *MetricsService, logger *zap.Logger) *SamplerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SamplerService{
		state:   state,
		metrics: metrics,
		logger:  logger,
		draw:    rand.Float64,
	}
}

// Decide returns true when the request should be mirrored to the shadow
// target. It may record a circuit-breaker failure and emit rate-limited
// logs; it mutates no other state.
func (s *SamplerService) Decide(r *http.Request) bool {
	rules := s.state.Rules()

	if !rules.enabled {
		return false
	}
	if !rules.methodAllowed(r.Method) {
		return false
	}
	if !rules.pathAllowed(r.URL.Path) {
		return false
	}
	if rules.sampleRate <= 0 {
		return false
	}
	if rules.sampleRate < 1.0 && !s.rateAccepts(r, rules) {
		return false
	}
	return s.conditionAccepts(r, rules)
}

func (s *SamplerService) rateAccepts(r *http.Request, rules *Ruleset) bool {
	switch rules.sampler {
	case models.StrategyStableHash:
		return s.stableHashAccepts(r, rules)
	default:
		return s.draw() < rules.sampleRate
	}
}

// stableHashAccepts maps (identifier, scope) deterministically onto [0, 2^32)
// and accepts when the hash falls under floor(rate * 2^32). Without an
// identifier the decision fails closed.
func (s *SamplerService) stableHashAccepts(r *http.Request, rules *Ruleset) bool {
	id := s.extractIdentifier(r, rules)
	if id == "" {
		return false
	}

	key := id
	if rules.hashScope != nil {
		if scoped := s.applyScope(r, id, rules); scoped != "" {
			key = scoped
		}
	}

	var hash uint32
	if rules.samplingKey != "" {
		mac := hmac.New(sha256.New, []byte(rules.samplingKey))
		mac.Write([]byte(key))
		hash = binary.BigEndian.Uint32(mac.Sum(nil)[:4])
	} else {
		sum := md5.Sum([]byte(key))
		hash = binary.BigEndian.Uint32(sum[:4])
	}

	threshold := uint64(rules.sampleRate * float64(1<<32))
	return uint64(hash) < threshold
}

func (s *SamplerService) extractIdentifier(r *http.Request, rules *Ruleset) string {
	if rules.identifierExtractor != nil {
		if id := s.safeExtract(r, rules); id != "" {
			return id
		}
	}
	return r.Header.Get(requestid.Header)
}

// safeExtract treats an extractor panic as "no identifier" rather than
// letting it reach the request handler.
func (s *SamplerService) safeExtract(r *http.Request, rules *Ruleset) (id string) {
	defer func() {
		if rec := recover(); rec != nil {
			id = ""
			s.warn("identifier extractor panicked", zap.Any("panic", rec))
		}
	}()
	return rules.identifierExtractor(r)
}

func (s *SamplerService) applyScope(r *http.Request, id string, rules *Ruleset) (scoped string) {
	defer func() {
		if rec := recover(); rec != nil {
			scoped = ""
			s.warn("hash scope panicked", zap.Any("panic", rec))
		}
	}()
	return rules.hashScope(r, id)
}

// conditionAccepts runs the user condition under the clamped timeout. A
// timeout or panic records a breaker failure and rejects; an open circuit
// rejects without invoking the condition at all.
func (s *SamplerService) conditionAccepts(r *http.Request, rules *Ruleset) bool {
	if rules.condition == nil {
		return true
	}
	open := s.state.CircuitOpen()
	s.metrics.SetCircuitOpen(open)
	if open {
		return false
	}

	type condResult struct {
		ok       bool
		panicked bool
		value    interface{}
	}

	resultCh := make(chan condResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- condResult{panicked: true, value: rec}
			}
		}()
		resultCh <- condResult{ok: rules.condition(r)}
	}()

	timer := time.NewTimer(rules.conditionTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.panicked {
			s.recordFailure()
			s.errorLog("shadow condition panicked", zap.Any("panic", res.value))
			return false
		}
		return res.ok
	case <-timer.C:
		// The goroutine keeps running until the condition returns on its
		// own; only the sampler's wait is bounded.
		s.recordFailure()
		s.warn("shadow condition timed out", zap.Duration("timeout", rules.conditionTimeout))
		return false
	}
}

func (s *SamplerService) recordFailure() {
	s.state.RecordConditionFailure()
	s.metrics.SetCircuitOpen(s.state.CircuitOpen())
}

func (s *SamplerService) warn(msg string, fields ...zap.Field) {
	if s.state.AllowLog(zapcore.WarnLevel) {
		s.logger.Warn(msg, fields...)
	}
}

func (s *SamplerService) errorLog(msg string, fields ...zap.Field) {
	if s.state.AllowLog(zapcore.ErrorLevel) {
		s.logger.Error(msg, fields...)
	}
}
