package oai

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrorCode is an OAI-PMH protocol error code as it appears on the wire.
type ErrorCode string

const (
	CodeBadArgument        ErrorCode = "badArgument"
	CodeBadVerb            ErrorCode = "badVerb"
	CodeBadResumptionToken ErrorCode = "badResumptionToken"
	CodeService            ErrorCode = "service"
)

// ValidationError is one protocol-level rejection. Errors accumulate; a
// request can carry several, and all of them go into the error document.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const datestampLayout = "2006-01-02T15:04:05"

// Validate checks a verb name and its parameters against the protocol rules.
// It returns every violation it finds, not just the first: the illegal
// parameter scan and both datestamp checks run to completion independently.
// Required-parameter completeness is not checked here (see VerbRule).
func Validate(verbName string, params url.Values) []ValidationError {
	rule, ok := LookupVerb(verbName)
	if !ok {
		return []ValidationError{{
			Code:    CodeBadVerb,
			Message: fmt.Sprintf("Bad verb. Verb '%s' is not implemented", verbName),
		}}
	}

	var errs []ValidationError

	// Sorted scan keeps "first offending parameter" deterministic.
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !rule.allows(name) {
			errs = append(errs, ValidationError{
				Code:    CodeBadArgument,
				Message: fmt.Sprintf("Verb '%s', illegal argument: %s", rule.Name, name),
			})
		}
	}

	if rule.Exclusive != "" && params.Has(rule.Exclusive) {
		for _, name := range names {
			if name == rule.Exclusive {
				continue
			}
			if _, excluded := excludedFromValidation[name]; excluded {
				continue
			}
			errs = append(errs, ValidationError{
				Code: CodeBadArgument,
				Message: fmt.Sprintf(
					"Verb '%s', argument '%s' is exclusive, no others maybe specified with it.",
					rule.Name, rule.Exclusive),
			})
			break
		}
	}

	for _, arg := range []string{"from", "until"} {
		if !params.Has(arg) {
			continue
		}
		if !validDatestamp(params.Get(arg)) {
			errs = append(errs, ValidationError{
				Code:    CodeBadArgument,
				Message: fmt.Sprintf("Bad datestamp format for '%s' argument.", arg),
			})
		}
	}

	return errs
}

// validDatestamp enforces the second-granularity UTC form yyyy-MM-ddTHH:mm:ssZ
// with a literal trailing Z and no fractional seconds.
func validDatestamp(v string) bool {
	if len(v) != len(datestampLayout)+1 || !strings.HasSuffix(v, "Z") {
		return false
	}
	_, err := time.Parse(datestampLayout, v[:len(v)-1])
	return err == nil
}
