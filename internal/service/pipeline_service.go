package service

import (
	"context"

	"github.com/noah-isme/shadowgate/internal/models"
	apperrors "github.com/noah-isme/shadowgate/pkg/errors"
)

// Capture bundles everything the async pipeline needs for one request: the
// captured request and the response the primary handler already returned.
type Capture struct {
	Request  models.RequestPayload
	Original models.ResponsePayload
}

// PipelineService runs the asynchronous half of the engine for one capture:
// scrub, dispatch, diff, report. It runs on queue workers, decoupled from
// and never blocking the primary response path.
type PipelineService struct {
	scrubber *ScrubberService
	client   *ShadowClient
	differ   *DifferService
	reporter *ReporterService
}

// NewPipelineService wires the pipeline stages together.
func NewPipelineService(scrubber *ScrubberService, client *ShadowClient, differ *DifferService, reporter *ReporterService) *PipelineService {
	return &PipelineService{
		scrubber: scrubber,
		client:   client,
		differ:   differ,
		reporter: reporter,
	}
}

// Process handles one capture end to end. Every failure is resolved locally:
// a missing shadow response becomes an error event, never a panic or a
// propagated error.
func (p *PipelineService) Process(ctx context.Context, capture Capture) {
	scrubbed := p.scrubber.Scrub(&capture.Request)

	shadow := p.client.Send(ctx, scrubbed)
	if shadow == nil {
		p.reporter.ReportError(*scrubbed, apperrors.ErrDispatchFailed.Code, apperrors.ErrDispatchFailed)
		return
	}

	mismatches := p.differ.Diff(&capture.Original, shadow)
	p.reporter.Report(*scrubbed, &capture.Original, shadow, mismatches)
}
