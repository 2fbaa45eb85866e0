package service

import (
	"encoding/json"
	"mime"
	"strings"

	"github.com/noah-isme/shadowgate/internal/models"
)

// ScrubberService redacts sensitive data from a captured request before it
// leaves the process towards the shadow target.
type ScrubberService struct {
	state *RuntimeState
}

// NewScrubberService builds a scrubber over the shared runtime state.
func NewScrubberService(state *RuntimeState) *ScrubberService {
	return &ScrubberService{state: state}
}

// Scrub removes configured headers and masks configured JSON body fields in
// place. A body that does not declare JSON, or fails to parse, passes
// through untouched: corrupting an unparseable body is worse than shipping
// it as captured, and the risk is documented on the configuration surface.
func (s *ScrubberService) Scrub(payload *models.RequestPayload) *models.RequestPayload {
	rules := s.state.Rules()

	for name := range payload.Headers {
		if _, drop := rules.scrubHeaders[strings.ToLower(name)]; drop {
			delete(payload.Headers, name)
		}
	}

	if len(rules.scrubJSONFields) == 0 || len(payload.Body) == 0 {
		return payload
	}
	if !jsonContentType(payload.ContentType()) {
		return payload
	}

	var tree interface{}
	if err := json.Unmarshal(payload.Body, &tree); err != nil {
		return payload
	}

	masked := maskTree(tree, rules.scrubJSONFields, rules.scrubMask)
	if body, err := json.Marshal(masked); err == nil {
		payload.Body = body
	}

	return payload
}

// maskTree walks mappings and sequences, replacing the value of every key in
// fields with mask. Masked values are not descended into.
func maskTree(node interface{}, fields map[string]struct{}, mask string) interface{} {
	switch val := node.(type) {
	case map[string]interface{}:
		for key, child := range val {
			if _, hit := fields[key]; hit {
				val[key] = mask
				continue
			}
			val[key] = maskTree(child, fields, mask)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = maskTree(child, fields, mask)
		}
		return val
	default:
		return node
	}
}

// jsonContentType reports whether a content-type header denotes a JSON body,
// covering application/json and the +json structured-syntax suffix.
func jsonContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
