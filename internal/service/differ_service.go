package service

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/noah-isme/shadowgate/internal/models"
)

// DifferService compares the original and shadow responses structurally.
// Equality is purely structural: key sets and values, never serialization
// order or object identity.
type DifferService struct {
	state *RuntimeState
}

// NewDifferService builds a differ over the shared runtime state.
func NewDifferService(state *RuntimeState) *DifferService {
	return &DifferService{state: state}
}

// Diff returns every detected mismatch between the two responses, or nil
// when diffing is disabled or the responses agree.
func (d *DifferService) Diff(original, shadow *models.ResponsePayload) []models.Mismatch {
	rules := d.state.Rules()
	if !rules.diffEnabled {
		return nil
	}

	var mismatches []models.Mismatch

	if original.Status != shadow.Status {
		mismatches = append(mismatches, models.Mismatch{
			Kind:     models.MismatchStatus,
			Original: original.Status,
			Shadow:   shadow.Status,
		})
	}

	mismatches = append(mismatches, diffHeaders(original.Headers, shadow.Headers)...)
	mismatches = append(mismatches, d.diffBodies(original, shadow, rules)...)

	return mismatches
}

// diffHeaders compares the union of lower-cased header keys. Absence on one
// side is a nil value, distinguishable from an empty string.
func diffHeaders(original, shadow map[string][]string) []models.Mismatch {
	origNorm := normalizeHeaders(original)
	shadNorm := normalizeHeaders(shadow)

	keys := make(map[string]struct{}, len(origNorm)+len(shadNorm))
	for k := range origNorm {
		keys[k] = struct{}{}
	}
	for k := range shadNorm {
		keys[k] = struct{}{}
	}

	var mismatches []models.Mismatch
	for key := range keys {
		origVal, origOK := origNorm[key]
		shadVal, shadOK := shadNorm[key]
		if origOK && shadOK && reflect.DeepEqual(origVal, shadVal) {
			continue
		}
		m := models.Mismatch{Kind: models.MismatchHeader, Key: key}
		if origOK {
			m.Original = origVal
		}
		if shadOK {
			m.Shadow = shadVal
		}
		mismatches = append(mismatches, m)
	}
	return mismatches
}

func normalizeHeaders(headers map[string][]string) map[string][]string {
	norm := make(map[string][]string, len(headers))
	for key, values := range headers {
		norm[strings.ToLower(key)] = append(norm[strings.ToLower(key)], values...)
	}
	return norm
}

func (d *DifferService) diffBodies(original, shadow *models.ResponsePayload, rules *Ruleset) []models.Mismatch {
	if bytes.Equal(original.Body, shadow.Body) {
		return nil
	}

	if !jsonContentType(original.ContentType()) || !jsonContentType(shadow.ContentType()) {
		return []models.Mismatch{{
			Kind:     models.MismatchBodyText,
			Original: string(original.Body),
			Shadow:   string(shadow.Body),
		}}
	}

	var origTree, shadTree interface{}
	if err := json.Unmarshal(original.Body, &origTree); err != nil {
		return []models.Mismatch{parseErrorMismatch(err, original.Body, shadow.Body)}
	}
	if err := json.Unmarshal(shadow.Body, &shadTree); err != nil {
		return []models.Mismatch{parseErrorMismatch(err, original.Body, shadow.Body)}
	}

	for _, path := range rules.diffIgnorePaths {
		origTree = removePath(origTree, path)
		shadTree = removePath(shadTree, path)
	}

	if reflect.DeepEqual(origTree, shadTree) {
		return nil
	}
	return []models.Mismatch{{
		Kind:     models.MismatchBodyJSON,
		Original: origTree,
		Shadow:   shadTree,
	}}
}

func parseErrorMismatch(err error, originalRaw, shadowRaw []byte) models.Mismatch {
	return models.Mismatch{
		Kind:        models.MismatchBodyParseError,
		Message:     err.Error(),
		OriginalRaw: string(originalRaw),
		ShadowRaw:   string(shadowRaw),
	}
}

// removePath destructively removes the value addressed by the dot-path
// segments from the tree. Numeric segments index sequences. A missing key,
// a non-container node, or an index out of range silently ends the removal.
func removePath(node interface{}, segments []string) interface{} {
	if len(segments) == 0 {
		return node
	}
	seg := segments[0]

	switch val := node.(type) {
	case map[string]interface{}:
		if len(segments) == 1 {
			delete(val, seg)
			return val
		}
		child, ok := val[seg]
		if !ok {
			return val
		}
		val[seg] = removePath(child, segments[1:])
		return val
	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(val) {
			return val
		}
		if len(segments) == 1 {
			return append(val[:idx], val[idx+1:]...)
		}
		val[idx] = removePath(val[idx], segments[1:])
		return val
	default:
		return node
	}
}
