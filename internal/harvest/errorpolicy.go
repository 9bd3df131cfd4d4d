package harvest

import (
	"fmt"
	"net/http"
)

// ErrorsProcessing modes. Some harvester clients abort on any non-2xx mid
// harvest; coercion mode exists for them.
const (
	ErrorsPassThrough = "500"
	ErrorsCoerceTo200 = "200"
)

// Backend statuses mirrored to the caller as-is in pass-through mode.
var passThroughStatuses = map[int]struct{}{
	http.StatusOK:                 {},
	http.StatusBadRequest:         {},
	http.StatusNotFound:           {},
	http.StatusUnprocessableEntity: {},
	http.StatusServiceUnavailable: {},
}

// ErrorPolicy maps backend outcomes to caller-visible ones. Validation and
// content-negotiation rejections never pass through here; they keep their own
// fixed statuses regardless of mode.
type ErrorPolicy struct {
	CoerceTo200 bool
}

// NewErrorPolicy builds a policy from the configured errors-processing mode.
func NewErrorPolicy(mode string) ErrorPolicy {
	return ErrorPolicy{CoerceTo200: mode == ErrorsCoerceTo200}
}

// Classify returns the status and body the caller sees for a backend outcome.
func (p ErrorPolicy) Classify(status int, body []byte) (int, []byte) {
	if p.CoerceTo200 {
		return http.StatusOK, body
	}
	if _, ok := passThroughStatuses[status]; ok {
		return status, body
	}
	diagnostic := fmt.Sprintf("backend responded with unexpected status: %d %s, body: %s",
		status, http.StatusText(status), body)
	return http.StatusInternalServerError, []byte(diagnostic)
}
