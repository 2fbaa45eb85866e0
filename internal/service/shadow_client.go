package service

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/http/httpguts"

	"github.com/noah-isme/shadowgate/internal/models"
)

// Dispatch timeouts are deliberately not configurable: they bound the
// worst-case resource hold time of shadow work, whatever the target does.
const (
	dispatchDialTimeout = 2 * time.Second
	dispatchReadTimeout = 5 * time.Second
)

// ShadowClient replays a scrubbed request against the shadow target.
type ShadowClient struct {
	state   *RuntimeState
	logger  *zap.Logger
	metrics *MetricsService
	client  *http.Client
}

// NewShadowClient builds a dispatch client with the fixed shadow timeouts.
func NewShadowClient(state *RuntimeState, metrics *MetricsService, logger *zap.Logger) *ShadowClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShadowClient{
		state:   state,
		logger:  logger,
		metrics: metrics,
		client: &http.Client{
			Timeout: dispatchReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dispatchDialTimeout}).DialContext,
			},
		},
	}
}

// Send dispatches the payload to the configured target and returns the
// shadow response, or nil when no target is configured or the dispatch
// fails. Nil means "shadow not completed", never a crash.
func (c *ShadowClient) Send(ctx context.Context, payload *models.RequestPayload) *models.ResponsePayload {
	rules := c.state.Rules()
	if rules.targetURL == "" {
		return nil
	}

	url := rules.targetURL + payload.Path
	if payload.Query != "" {
		url += "?" + payload.Query
	}

	var body io.Reader
	if len(payload.Body) > 0 {
		body = bytes.NewReader(payload.Body)
	}

	req, err := http.NewRequestWithContext(ctx, payload.Method, url, body)
	if err != nil {
		c.dispatchError("building shadow request failed", url, err)
		return nil
	}

	for name, values := range payload.Headers {
		if !httpguts.ValidHeaderFieldName(name) {
			c.warn("skipping malformed header name", zap.String("header", name))
			continue
		}
		for _, value := range values {
			if !httpguts.ValidHeaderFieldValue(value) {
				c.warn("skipping malformed header value", zap.String("header", name))
				continue
			}
			req.Header.Add(name, value)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.ObserveDispatch(time.Since(start))
	if err != nil {
		c.dispatchError("shadow dispatch failed", url, err)
		return nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.dispatchError("reading shadow response failed", url, err)
		return nil
	}

	return &models.ResponsePayload{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    respBody,
	}
}

func (c *ShadowClient) warn(msg string, fields ...zap.Field) {
	if c.state.AllowLog(zapcore.WarnLevel) {
		c.logger.Warn(msg, fields...)
	}
}

func (c *ShadowClient) dispatchError(msg, url string, err error) {
	if c.state.AllowLog(zapcore.ErrorLevel) {
		c.logger.Error(msg, zap.String("url", url), zap.Error(err))
	}
}
