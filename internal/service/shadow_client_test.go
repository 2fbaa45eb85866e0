package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/shadowgate/internal/models"
)

func newTestClient(t *testing.T, targetURL string) *ShadowClient {
	t.Helper()
	builder := validBuilder()
	if targetURL == "" {
		builder.Enabled = false
	}
	builder.TargetURL = targetURL
	rules, err := builder.Finalize()
	require.NoError(t, err)
	return NewShadowClient(NewRuntimeState(rules), nil, zap.NewNop())
}

func TestSendReproducesRequest(t *testing.T) {
	var (
		gotMethod string
		gotURI    string
		gotHeader string
		gotBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotURI = r.URL.RequestURI()
		gotHeader = r.Header.Get("X-Tenant")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	resp := client.Send(context.Background(), &models.RequestPayload{
		Method:  http.MethodPost,
		Path:    "/api/v1/users",
		Query:   "dry_run=1",
		Headers: map[string][]string{"X-Tenant": {"acme"}},
		Body:    []byte(`{"name":"ada"}`),
	})

	require.NotNil(t, resp)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, []byte(`{"created":true}`), resp.Body)
	assert.Equal(t, "application/json", resp.ContentType())

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/users?dry_run=1", gotURI)
	assert.Equal(t, "acme", gotHeader)
	assert.Equal(t, []byte(`{"name":"ada"}`), gotBody)
}

func TestSendWithoutTarget(t *testing.T) {
	client := newTestClient(t, "")

	resp := client.Send(context.Background(), &models.RequestPayload{
		Method: http.MethodGet,
		Path:   "/x",
	})
	assert.Nil(t, resp)
}

func TestSendNetworkFailureReturnsNil(t *testing.T) {
	// Reserved port with nothing listening.
	client := newTestClient(t, "http://127.0.0.1:1")

	resp := client.Send(context.Background(), &models.RequestPayload{
		Method: http.MethodGet,
		Path:   "/x",
	})
	assert.Nil(t, resp)
}

func TestSendSkipsMalformedHeaders(t *testing.T) {
	var sawInjected bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawInjected = r.Header.Get("X-Broken") != ""
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	resp := client.Send(context.Background(), &models.RequestPayload{
		Method: http.MethodGet,
		Path:   "/x",
		Headers: map[string][]string{
			"X-Broken": {"bad\r\nvalue"},
			"X-Fine":   {"ok"},
		},
	})

	require.NotNil(t, resp)
	assert.False(t, sawInjected)
}
