package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/shadowgate/internal/models"
	"github.com/noah-isme/shadowgate/pkg/events"
)

// ReporterService publishes one structured event per completed shadow
// pipeline run and writes a best-effort, rate-limited log line. Reporting
// failures never propagate: nothing downstream of the reporter may touch
// the primary request.
type ReporterService struct {
	state   *RuntimeState
	bus     *events.Bus
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReporterService builds a reporter over the shared runtime state.
func NewReporterService(state *RuntimeState, bus *events.Bus, metrics *MetricsService, logger *zap.Logger) *ReporterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReporterService{state: state, bus: bus, metrics: metrics, logger: logger}
}

// Report emits shadow_traffic.ok when mismatches is empty, otherwise
// shadow_traffic.mismatch.
func (r *ReporterService) Report(request models.RequestPayload, original, shadow *models.ResponsePayload, mismatches []models.Mismatch) {
	defer r.swallow()

	outcome := models.OutcomeOK
	topic := events.TopicOK
	if len(mismatches) > 0 {
		outcome = models.OutcomeMismatch
		topic = events.TopicMismatch
	}

	event := models.ReportEvent{
		ID:         uuid.NewString(),
		Outcome:    outcome,
		Request:    request,
		Original:   original.Summary(),
		Shadow:     shadow.Summary(),
		Mismatches: mismatches,
		ObservedAt: time.Now().UTC(),
	}

	r.metrics.ObserveReport(outcome)
	if r.bus != nil {
		r.bus.Publish(topic, event)
	}

	if outcome == models.OutcomeMismatch {
		if r.state.AllowLog(zapcore.WarnLevel) {
			r.logger.Warn("shadow_mismatch",
				zap.String("event_id", event.ID),
				zap.String("method", request.Method),
				zap.String("path", request.Path),
				zap.Int("mismatches", len(mismatches)),
			)
		}
		return
	}
	if r.state.AllowLog(zapcore.InfoLevel) {
		r.logger.Info("shadow_ok",
			zap.String("event_id", event.ID),
			zap.String("method", request.Method),
			zap.String("path", request.Path),
		)
	}
}

// ReportError emits shadow_traffic.error for dispatch or processing
// failures.
func (r *ReporterService) ReportError(request models.RequestPayload, kind string, err error) {
	defer r.swallow()

	message := ""
	if err != nil {
		message = err.Error()
	}

	event := models.ReportEvent{
		ID:         uuid.NewString(),
		Outcome:    models.OutcomeError,
		Request:    request,
		Error:      &models.ErrorDescriptor{Kind: kind, Message: message},
		ObservedAt: time.Now().UTC(),
	}

	r.metrics.ObserveReport(models.OutcomeError)
	if r.bus != nil {
		r.bus.Publish(events.TopicError, event)
	}

	if r.state.AllowLog(zapcore.ErrorLevel) {
		r.logger.Error("shadow_error",
			zap.String("event_id", event.ID),
			zap.String("kind", kind),
			zap.String("method", request.Method),
			zap.String("path", request.Path),
			zap.String("error", message),
		)
	}
}

// swallow recovers reporting panics, logging them only while the error log
// rate limit allows.
func (r *ReporterService) swallow() {
	rec := recover()
	if rec == nil {
		return
	}
	if r.state.AllowLog(zapcore.ErrorLevel) {
		r.logger.Error("shadow reporting failed", zap.Any("panic", rec))
	}
}
