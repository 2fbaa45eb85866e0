package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shadowgate/internal/models"
)

func newTestDiffer(t *testing.T, mutate func(*RulesetBuilder)) *DifferService {
	t.Helper()
	builder := validBuilder()
	if mutate != nil {
		mutate(builder)
	}
	rules, err := builder.Finalize()
	require.NoError(t, err)
	return NewDifferService(NewRuntimeState(rules))
}

func jsonResponse(status int, body string) *models.ResponsePayload {
	return &models.ResponsePayload{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    []byte(body),
	}
}

func TestDiffIdentity(t *testing.T) {
	differ := newTestDiffer(t, nil)

	resp := jsonResponse(200, `{"a":1,"b":[1,2,3]}`)
	other := jsonResponse(200, `{"a":1,"b":[1,2,3]}`)

	assert.Empty(t, differ.Diff(resp, other))
}

func TestDiffDisabled(t *testing.T) {
	differ := newTestDiffer(t, func(b *RulesetBuilder) {
		b.DiffEnabled = false
	})

	assert.Empty(t, differ.Diff(jsonResponse(200, `{}`), jsonResponse(500, `{"x":1}`)))
}

func TestDiffStatus(t *testing.T) {
	differ := newTestDiffer(t, nil)

	mismatches := differ.Diff(jsonResponse(200, `{}`), jsonResponse(502, `{}`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, models.MismatchStatus, mismatches[0].Kind)
	assert.Equal(t, 200, mismatches[0].Original)
	assert.Equal(t, 502, mismatches[0].Shadow)
}

func TestDiffHeaders(t *testing.T) {
	differ := newTestDiffer(t, nil)

	original := &models.ResponsePayload{
		Status: 200,
		Headers: map[string][]string{
			"Content-Type": {"application/json"},
			"X-Only-Here":  {"yes"},
		},
		Body: []byte(`{}`),
	}
	shadow := &models.ResponsePayload{
		Status: 200,
		Headers: map[string][]string{
			"content-type": {"application/json"}, // same after lower-casing
			"X-Version":    {"v2"},
		},
		Body: []byte(`{}`),
	}

	mismatches := differ.Diff(original, shadow)
	require.Len(t, mismatches, 2)

	byKey := map[string]models.Mismatch{}
	for _, m := range mismatches {
		require.Equal(t, models.MismatchHeader, m.Kind)
		byKey[m.Key] = m
	}

	onlyHere := byKey["x-only-here"]
	assert.Equal(t, []string{"yes"}, onlyHere.Original)
	assert.Nil(t, onlyHere.Shadow)

	version := byKey["x-version"]
	assert.Nil(t, version.Original)
	assert.Equal(t, []string{"v2"}, version.Shadow)
}

func TestDiffIgnoresConfiguredJSONPaths(t *testing.T) {
	differ := newTestDiffer(t, func(b *RulesetBuilder) {
		b.DiffIgnoreJSONPaths = []string{"timestamp"}
	})

	original := jsonResponse(200, `{"a":1,"timestamp":111}`)
	shadow := jsonResponse(200, `{"a":1,"timestamp":222}`)

	assert.Empty(t, differ.Diff(original, shadow))
}

func TestDiffJSONMismatchCarriesNormalizedTrees(t *testing.T) {
	differ := newTestDiffer(t, func(b *RulesetBuilder) {
		b.DiffIgnoreJSONPaths = []string{"timestamp"}
	})

	original := jsonResponse(200, `{"a":1,"timestamp":111}`)
	shadow := jsonResponse(200, `{"a":2,"timestamp":222}`)

	mismatches := differ.Diff(original, shadow)
	require.Len(t, mismatches, 1)
	assert.Equal(t, models.MismatchBodyJSON, mismatches[0].Kind)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, mismatches[0].Original)
	assert.Equal(t, map[string]interface{}{"a": float64(2)}, mismatches[0].Shadow)
}

func TestDiffIgnoreNumericIndexPath(t *testing.T) {
	differ := newTestDiffer(t, func(b *RulesetBuilder) {
		b.DiffIgnoreJSONPaths = []string{"items.0.id"}
	})

	original := jsonResponse(200, `{"items":[{"id":"aaa","v":1}]}`)
	shadow := jsonResponse(200, `{"items":[{"id":"bbb","v":1}]}`)

	assert.Empty(t, differ.Diff(original, shadow))
}

func TestDiffIgnorePathDegradesGracefully(t *testing.T) {
	differ := newTestDiffer(t, func(b *RulesetBuilder) {
		b.DiffIgnoreJSONPaths = []string{"missing.deep.path", "items.99"}
	})

	original := jsonResponse(200, `{"items":[1],"a":1}`)
	shadow := jsonResponse(200, `{"a":1,"items":[1]}`)

	assert.Empty(t, differ.Diff(original, shadow))
}

func TestDiffKeyOrderIrrelevant(t *testing.T) {
	differ := newTestDiffer(t, nil)

	original := jsonResponse(200, `{"a":1,"b":2}`)
	shadow := jsonResponse(200, `{"b":2,"a":1}`)

	assert.Empty(t, differ.Diff(original, shadow))
}

func TestDiffParseErrorOnOriginal(t *testing.T) {
	differ := newTestDiffer(t, nil)

	original := jsonResponse(200, `{"a":`)
	shadow := jsonResponse(200, `{"a":1}`)

	mismatches := differ.Diff(original, shadow)
	require.Len(t, mismatches, 1)
	assert.Equal(t, models.MismatchBodyParseError, mismatches[0].Kind)
	assert.NotEmpty(t, mismatches[0].Message)
	assert.Equal(t, `{"a":`, mismatches[0].OriginalRaw)
	assert.Equal(t, `{"a":1}`, mismatches[0].ShadowRaw)
}

func TestDiffTextFallbackForNonJSON(t *testing.T) {
	differ := newTestDiffer(t, nil)

	original := &models.ResponsePayload{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"text/plain"}},
		Body:    []byte("hello"),
	}
	shadow := &models.ResponsePayload{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"text/plain"}},
		Body:    []byte("goodbye"),
	}

	mismatches := differ.Diff(original, shadow)
	require.Len(t, mismatches, 1)
	assert.Equal(t, models.MismatchBodyText, mismatches[0].Kind)
	assert.Equal(t, "hello", mismatches[0].Original)
	assert.Equal(t, "goodbye", mismatches[0].Shadow)
}

func TestDiffContentTypeDisagreementFallsBackToText(t *testing.T) {
	differ := newTestDiffer(t, nil)

	original := jsonResponse(200, `{"a":1}`)
	shadow := &models.ResponsePayload{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"text/html"}},
		Body:    []byte(`{"a":1} `),
	}

	mismatches := differ.Diff(original, shadow)
	// One content-type header mismatch plus the text body mismatch.
	require.Len(t, mismatches, 2)
}

func TestDiffIdenticalBytesSkipParsing(t *testing.T) {
	differ := newTestDiffer(t, nil)

	// Malformed JSON on both sides, but byte-identical bodies never parse.
	original := jsonResponse(200, `{"broken`)
	shadow := jsonResponse(200, `{"broken`)

	assert.Empty(t, differ.Diff(original, shadow))
}
