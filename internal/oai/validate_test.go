package oai

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiredParametersOnly(t *testing.T) {
	// A request carrying exactly the verb plus its required parameters is
	// always clean, for every verb in the table.
	for name, rule := range verbRules {
		params := url.Values{"verb": {name}}
		for _, p := range rule.Required {
			params.Set(p, "x")
		}
		assert.Empty(t, Validate(name, params), "verb %s", name)
	}
}

func TestValidateUnknownVerb(t *testing.T) {
	errs := Validate("ListBooks", url.Values{"verb": {"ListBooks"}})
	require.Len(t, errs, 1)
	assert.Equal(t, CodeBadVerb, errs[0].Code)
	assert.Equal(t, "Bad verb. Verb 'ListBooks' is not implemented", errs[0].Message)
}

func TestValidateIllegalArguments(t *testing.T) {
	params := url.Values{
		"verb":           {VerbIdentify},
		"metadataPrefix": {"oai_dc"},
		"flavor":         {"strawberry"},
	}
	errs := Validate(VerbIdentify, params)
	require.Len(t, errs, 2, "one error per offending parameter")
	assert.Equal(t, "Verb 'Identify', illegal argument: flavor", errs[0].Message)
	assert.Equal(t, "Verb 'Identify', illegal argument: metadataPrefix", errs[1].Message)
	for _, e := range errs {
		assert.Equal(t, CodeBadArgument, e.Code)
	}
}

func TestValidateExclusiveResumptionToken(t *testing.T) {
	params := url.Values{
		"verb":            {VerbListRecords},
		"resumptionToken": {"abc"},
		"metadataPrefix":  {"oai_dc"},
	}
	errs := Validate(VerbListRecords, params)
	require.Len(t, errs, 1, "exclusivity reported once")
	assert.Equal(t, CodeBadArgument, errs[0].Code)
	assert.Equal(t,
		"Verb 'ListRecords', argument 'resumptionToken' is exclusive, no others maybe specified with it.",
		errs[0].Message)
}

func TestValidateExclusiveAloneIsClean(t *testing.T) {
	params := url.Values{
		"verb":            {VerbListIdentifiers},
		"resumptionToken": {"abc"},
		"apikey":          {"k"},
	}
	assert.Empty(t, Validate(VerbListIdentifiers, params))
}

func TestValidateDatestamps(t *testing.T) {
	cases := []struct {
		name  string
		value string
		valid bool
	}{
		{"second granularity UTC", "2016-01-01T00:00:00Z", true},
		{"missing trailing Z", "2016-01-01T00:00:00", false},
		{"fractional seconds", "2016-01-01T00:00:00.5Z", false},
		{"date only", "2016-01-01", false},
		{"numeric offset", "2016-01-01T00:00:00+01:00", false},
		{"garbage", "yesterday", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := url.Values{
				"verb":           {VerbListRecords},
				"metadataPrefix": {"oai_dc"},
				"from":           {tc.value},
			}
			errs := Validate(VerbListRecords, params)
			if tc.valid {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, "Bad datestamp format for 'from' argument.", errs[0].Message)
		})
	}
}

func TestValidateBothDatestampsChecked(t *testing.T) {
	params := url.Values{
		"verb":           {VerbListIdentifiers},
		"metadataPrefix": {"oai_dc"},
		"from":           {"not-a-date"},
		"until":          {"also-not-a-date"},
	}
	errs := Validate(VerbListIdentifiers, params)
	require.Len(t, errs, 2, "a bad from must not mask a bad until")
	assert.Equal(t, "Bad datestamp format for 'from' argument.", errs[0].Message)
	assert.Equal(t, "Bad datestamp format for 'until' argument.", errs[1].Message)
}
