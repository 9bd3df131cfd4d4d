// Package oai implements the OAI-PMH protocol surface the gateway speaks:
// the verb/parameter rules, the resumption token codec, content negotiation
// and the subset of the XML object model the harvest engine inspects.
package oai

// Protocol verbs (OAI-PMH 2.0, section 4).
const (
	VerbIdentify            = "Identify"
	VerbGetRecord           = "GetRecord"
	VerbListRecords         = "ListRecords"
	VerbListIdentifiers     = "ListIdentifiers"
	VerbListMetadataFormats = "ListMetadataFormats"
	VerbListSets            = "ListSets"
)

// VerbRule is the static parameter contract for one verb. Required parameters
// are listed but deliberately not enforced here: completeness is the backend's
// call, since it may accept alternate completions (an embedded resumption
// token stands in for metadataPrefix, for example).
type VerbRule struct {
	Name      string
	Required  []string
	Optional  []string
	Exclusive string
}

// Parameters that never count as illegal, whatever the verb: the verb itself
// and the API-key material stripped off by the edge before dispatch.
var excludedFromValidation = map[string]struct{}{
	"verb":       {},
	"apikey":     {},
	"apiKeyPath": {},
}

var verbRules = map[string]VerbRule{
	VerbIdentify: {
		Name: VerbIdentify,
	},
	VerbGetRecord: {
		Name:     VerbGetRecord,
		Required: []string{"identifier", "metadataPrefix"},
	},
	VerbListRecords: {
		Name:      VerbListRecords,
		Required:  []string{"metadataPrefix"},
		Optional:  []string{"from", "until", "set"},
		Exclusive: "resumptionToken",
	},
	VerbListIdentifiers: {
		Name:      VerbListIdentifiers,
		Required:  []string{"metadataPrefix"},
		Optional:  []string{"from", "until", "set"},
		Exclusive: "resumptionToken",
	},
	VerbListMetadataFormats: {
		Name:     VerbListMetadataFormats,
		Optional: []string{"identifier"},
	},
	VerbListSets: {
		Name:      VerbListSets,
		Exclusive: "resumptionToken",
	},
}

// LookupVerb returns the rule for a verb name. The table is closed; unknown
// names are a protocol error, never a dispatchable request.
func LookupVerb(name string) (VerbRule, bool) {
	rule, ok := verbRules[name]
	return rule, ok
}

// IsListVerb reports whether the verb paginates over records or headers and
// therefore participates in auto-continuation and tenant advancement.
func IsListVerb(verb string) bool {
	return verb == VerbListRecords || verb == VerbListIdentifiers
}

func (r VerbRule) allows(param string) bool {
	if _, ok := excludedFromValidation[param]; ok {
		return true
	}
	for _, p := range r.Required {
		if p == param {
			return true
		}
	}
	for _, p := range r.Optional {
		if p == param {
			return true
		}
	}
	return r.Exclusive != "" && r.Exclusive == param
}
