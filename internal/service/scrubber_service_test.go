package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shadowgate/internal/models"
)

func newTestScrubber(t *testing.T, mutate func(*RulesetBuilder)) *ScrubberService {
	t.Helper()
	builder := validBuilder()
	builder.ScrubHeaders = []string{"Authorization", "Cookie"}
	builder.ScrubJSONFields = []string{"password", "ssn"}
	if mutate != nil {
		mutate(builder)
	}
	rules, err := builder.Finalize()
	require.NoError(t, err)
	return NewScrubberService(NewRuntimeState(rules))
}

func jsonPayload(body string) *models.RequestPayload {
	return &models.RequestPayload{
		Method:  "POST",
		Path:    "/api/v1/users",
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    []byte(body),
	}
}

func TestScrubHeadersCaseInsensitive(t *testing.T) {
	scrubber := newTestScrubber(t, nil)

	payload := &models.RequestPayload{
		Headers: map[string][]string{
			"AUTHORIZATION": {"Bearer secret"},
			"cookie":        {"session=abc"},
			"Accept":        {"application/json"},
		},
	}

	scrubbed := scrubber.Scrub(payload)

	assert.NotContains(t, scrubbed.Headers, "AUTHORIZATION")
	assert.NotContains(t, scrubbed.Headers, "cookie")
	assert.Equal(t, []string{"application/json"}, scrubbed.Headers["Accept"])
}

func TestScrubMasksNestedJSONFields(t *testing.T) {
	scrubber := newTestScrubber(t, nil)

	payload := jsonPayload(`{
		"user": {"name": "ada", "password": "hunter2"},
		"accounts": [{"ssn": "123-45-6789", "balance": 10}],
		"password": {"nested": "should not recurse"}
	}`)

	scrubbed := scrubber.Scrub(payload)

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(scrubbed.Body, &tree))

	user := tree["user"].(map[string]interface{})
	assert.Equal(t, "ada", user["name"])
	assert.Equal(t, "[FILTERED]", user["password"])

	account := tree["accounts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[FILTERED]", account["ssn"])
	assert.Equal(t, float64(10), account["balance"])

	// A masked value is replaced wholesale, not descended into.
	assert.Equal(t, "[FILTERED]", tree["password"])
}

func TestScrubCustomMask(t *testing.T) {
	scrubber := newTestScrubber(t, func(b *RulesetBuilder) {
		b.ScrubMask = "<redacted>"
	})

	scrubbed := scrubber.Scrub(jsonPayload(`{"password":"x"}`))

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(scrubbed.Body, &tree))
	assert.Equal(t, "<redacted>", tree["password"])
}

func TestScrubLeavesNonJSONBody(t *testing.T) {
	scrubber := newTestScrubber(t, nil)

	payload := &models.RequestPayload{
		Headers: map[string][]string{"Content-Type": {"text/plain"}},
		Body:    []byte(`password=hunter2`),
	}

	scrubbed := scrubber.Scrub(payload)
	assert.Equal(t, []byte(`password=hunter2`), scrubbed.Body)
}

func TestScrubLeavesMalformedJSONBody(t *testing.T) {
	scrubber := newTestScrubber(t, nil)

	payload := jsonPayload(`{"password": "hunter2"`)
	scrubbed := scrubber.Scrub(payload)

	assert.Equal(t, []byte(`{"password": "hunter2"`), scrubbed.Body)
}

func TestScrubSkipsBodyWithoutMaskFields(t *testing.T) {
	scrubber := newTestScrubber(t, func(b *RulesetBuilder) {
		b.ScrubJSONFields = nil
	})

	payload := jsonPayload(`{"password":"x"}`)
	scrubbed := scrubber.Scrub(payload)

	assert.Equal(t, []byte(`{"password":"x"}`), scrubbed.Body)
}

func TestJSONContentType(t *testing.T) {
	assert.True(t, jsonContentType("application/json"))
	assert.True(t, jsonContentType("application/json; charset=utf-8"))
	assert.True(t, jsonContentType("application/problem+json"))
	assert.False(t, jsonContentType("text/html"))
	assert.False(t, jsonContentType(""))
}
