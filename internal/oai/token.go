package oai

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Token wire field names, in their fixed encoding order.
const (
	tokenFieldTenant = "tenantId"
	tokenFieldPrefix = "metadataPrefix"
	tokenFieldFrom   = "from"
	tokenFieldUntil  = "until"
)

// Param is one extra key/value pair carried by a HarvestToken. Extras keep
// insertion order so equal tokens encode to equal strings.
type Param struct {
	Key   string
	Value string
}

// HarvestToken is the decoded content of a caller-visible resumption token:
// which tenant the harvest continues on, plus the original harvesting
// parameters, plus whatever extra state the engine tucked in (typically the
// backend-native cursor for same-tenant pagination).
type HarvestToken struct {
	TenantID       string
	MetadataPrefix string
	From           string
	Until          string
	Extra          []Param
}

// ExtraValue returns the value of an extra field, or "" when absent.
func (t HarvestToken) ExtraValue(key string) string {
	for _, p := range t.Extra {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// WithExtra returns a copy of the token with the extra field appended.
func (t HarvestToken) WithExtra(key, value string) HarvestToken {
	extra := make([]Param, len(t.Extra), len(t.Extra)+1)
	copy(extra, t.Extra)
	t.Extra = append(extra, Param{Key: key, Value: value})
	return t
}

// TokenDecodeError reports a resumption token the gateway cannot make sense
// of. Callers must treat it as a request-level badArgument, never advance
// past it.
type TokenDecodeError struct {
	Reason string
}

func (e *TokenDecodeError) Error() string {
	return fmt.Sprintf("resumption token: %s", e.Reason)
}

// EncodeToken serializes the token as key=value pairs joined by '&' in a
// deterministic field order (tenantId, metadataPrefix, from/until when
// present, extras in insertion order) and URL-safe base64-encodes the result
// without padding.
func EncodeToken(t HarvestToken) string {
	pairs := make([]string, 0, 4+len(t.Extra))
	appendPair := func(key, value string) {
		pairs = append(pairs, key+"="+url.QueryEscape(value))
	}
	appendPair(tokenFieldTenant, t.TenantID)
	appendPair(tokenFieldPrefix, t.MetadataPrefix)
	if t.From != "" {
		appendPair(tokenFieldFrom, t.From)
	}
	if t.Until != "" {
		appendPair(tokenFieldUntil, t.Until)
	}
	for _, p := range t.Extra {
		appendPair(p.Key, p.Value)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(pairs, "&")))
}

// DecodeToken reverses EncodeToken. Padded and unpadded input are both
// accepted so tokens survive intermediaries that re-pad base64. A token
// without a tenantId is rejected; it cannot be routed.
func DecodeToken(raw string) (HarvestToken, error) {
	t, err := parseToken(raw)
	if err != nil {
		return HarvestToken{}, err
	}
	if t.TenantID == "" {
		return HarvestToken{}, &TokenDecodeError{Reason: "missing tenantId"}
	}
	return t, nil
}

// PeekTokenFields decodes whatever fields it can from a token, without the
// tenantId requirement. Used to recover harvesting parameters from a
// backend-native cursor that shares this encoding; an undecodable cursor
// yields the zero token.
func PeekTokenFields(raw string) HarvestToken {
	t, err := parseToken(raw)
	if err != nil {
		return HarvestToken{}
	}
	return t
}

func parseToken(raw string) (HarvestToken, error) {
	if raw == "" {
		return HarvestToken{}, &TokenDecodeError{Reason: "empty token"}
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return HarvestToken{}, &TokenDecodeError{Reason: "malformed base64"}
	}

	var t HarvestToken
	for _, pair := range strings.Split(string(decoded), "&") {
		key, rawValue, _ := strings.Cut(pair, "=")
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return HarvestToken{}, &TokenDecodeError{Reason: fmt.Sprintf("malformed value for field %q", key)}
		}
		switch key {
		case tokenFieldTenant:
			t.TenantID = value
		case tokenFieldPrefix:
			t.MetadataPrefix = value
		case tokenFieldFrom:
			t.From = value
		case tokenFieldUntil:
			t.Until = value
		default:
			t.Extra = append(t.Extra, Param{Key: key, Value: value})
		}
	}
	return t, nil
}
