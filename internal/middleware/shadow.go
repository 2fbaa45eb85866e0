package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/shadowgate/internal/models"
	"github.com/noah-isme/shadowgate/internal/service"
	"github.com/noah-isme/shadowgate/pkg/jobs"
)

const shadowJobType = "shadow_pipeline"

// Shadow returns middleware that samples requests and hands accepted ones to
// the async shadow pipeline. The decision happens before the handler runs;
// the pipeline work is enqueued after the response is written and never
// delays or alters it.
func Shadow(sampler *service.SamplerService, queue *jobs.Queue, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sampled := sampler.Decide(c.Request)
		metrics.ObserveDecision(sampled)
		if !sampled {
			c.Next()
			return
		}

		reqBody := drainRequestBody(c)
		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		capture := service.Capture{
			Request: models.RequestPayload{
				Method:  c.Request.Method,
				Path:    c.Request.URL.Path,
				Query:   c.Request.URL.RawQuery,
				Headers: cloneHeaders(c.Request.Header),
				Body:    reqBody,
			},
			Original: models.ResponsePayload{
				Status:  writer.Status(),
				Headers: cloneHeaders(writer.Header()),
				Body:    writer.body.Bytes(),
			},
		}

		if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: shadowJobType, Payload: capture}); err != nil {
			logger.Sugar().Warnw("shadow capture dropped", "path", capture.Request.Path, "error", err)
		}
	}
}

// drainRequestBody reads the request body for capture and restores it so the
// primary handler sees an untouched request.
func drainRequestBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	_ = c.Request.Body.Close()
	if err != nil {
		c.Request.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

func cloneHeaders(src map[string][]string) map[string][]string {
	cloned := make(map[string][]string, len(src))
	for key, values := range src {
		cloned[key] = append([]string(nil), values...)
	}
	return cloned
}

// captureWriter tees the response body while it streams to the client.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
