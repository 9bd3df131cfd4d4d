package oai

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		token HarvestToken
	}{
		{
			name:  "minimal",
			token: HarvestToken{TenantID: "tenant1", MetadataPrefix: "oai_dc"},
		},
		{
			name: "full window",
			token: HarvestToken{
				TenantID:       "tenant2",
				MetadataPrefix: "marc21",
				From:           "2016-01-01T00:00:00Z",
				Until:          "2017-01-01T00:00:00Z",
			},
		},
		{
			name: "with backend cursor",
			token: HarvestToken{
				TenantID:       "tenant1",
				MetadataPrefix: "oai_dc",
				Extra: []Param{
					{Key: "resumptionToken", Value: "bWFyYzIx/100&offset=5"},
					{Key: "set", Value: "all"},
				},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeToken(EncodeToken(tc.token))
			require.NoError(t, err)
			assert.Equal(t, tc.token, decoded)
		})
	}
}

func TestEncodeTokenDeterministic(t *testing.T) {
	a := HarvestToken{TenantID: "t", MetadataPrefix: "oai_dc", From: "2016-01-01T00:00:00Z"}
	b := HarvestToken{From: "2016-01-01T00:00:00Z", MetadataPrefix: "oai_dc", TenantID: "t"}
	assert.Equal(t, EncodeToken(a), EncodeToken(b))
	assert.NotContains(t, EncodeToken(a), "=", "padding must be stripped")
}

func TestDecodeTokenAcceptsPadding(t *testing.T) {
	token := HarvestToken{TenantID: "tenant1", MetadataPrefix: "oai_dc"}
	encoded := EncodeToken(token)

	// Re-pad the way a forwarding proxy might.
	padded := encoded + strings.Repeat("=", (4-len(encoded)%4)%4)
	decoded, err := DecodeToken(padded)
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func TestDecodeTokenFailures(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := DecodeToken("")
		var decodeErr *TokenDecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("malformed base64", func(t *testing.T) {
		_, err := DecodeToken("not!!!base64")
		var decodeErr *TokenDecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, decodeErr.Error(), "malformed base64")
	})

	t.Run("missing tenantId", func(t *testing.T) {
		raw := base64.RawURLEncoding.EncodeToString([]byte("metadataPrefix=oai_dc"))
		_, err := DecodeToken(raw)
		var decodeErr *TokenDecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, decodeErr.Error(), "missing tenantId")
	})
}
