package oai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listRecordsBody = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2024-05-01T12:00:00Z</responseDate>
  <request verb="ListRecords" metadataPrefix="oai_dc" from="2016-01-01T00:00:00Z">https://repo.example.org/oai</request>
  <ListRecords>
    <record><header><identifier>oai:repo:1</identifier></header><metadata/></record>
    <record><header><identifier>oai:repo:2</identifier></header><metadata/></record>
    <resumptionToken cursor="0" completeListSize="120">native-cursor-1</resumptionToken>
  </ListRecords>
</OAI-PMH>`

const listIdentifiersEmptyBody = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2024-05-01T12:00:00Z</responseDate>
  <request verb="ListIdentifiers" metadataPrefix="oai_dc">https://repo.example.org/oai</request>
  <ListIdentifiers>
    <resumptionToken>native-cursor-2</resumptionToken>
  </ListIdentifiers>
</OAI-PMH>`

func TestInspectListRecords(t *testing.T) {
	s, err := Inspect([]byte(listRecordsBody))
	require.NoError(t, err)
	assert.True(t, s.HasList)
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, "native-cursor-1", s.ResumptionToken)
	assert.Equal(t, "oai_dc", s.EchoedPrefix)
	assert.Equal(t, "2016-01-01T00:00:00Z", s.EchoedFrom)
	assert.Empty(t, s.EchoedUntil)
}

func TestInspectEmptyPageWithToken(t *testing.T) {
	s, err := Inspect([]byte(listIdentifiersEmptyBody))
	require.NoError(t, err)
	assert.True(t, s.HasList)
	assert.Zero(t, s.Records)
	assert.Equal(t, "native-cursor-2", s.ResumptionToken)
}

func TestInspectProtocolError(t *testing.T) {
	body := `<OAI-PMH><request>https://repo.example.org/oai</request><error code="noRecordsMatch">nothing here</error></OAI-PMH>`
	s, err := Inspect([]byte(body))
	require.NoError(t, err)
	assert.False(t, s.HasList)
	assert.Equal(t, "noRecordsMatch", s.ErrorCode)
	assert.Equal(t, "nothing here", s.ErrorMessage)
}

func TestInspectMalformed(t *testing.T) {
	_, err := Inspect([]byte("<OAI-PMH><unclosed>"))
	require.Error(t, err)
}

func TestReplaceResumptionToken(t *testing.T) {
	t.Run("replaces existing element and drops its attributes", func(t *testing.T) {
		out := ReplaceResumptionToken([]byte(listRecordsBody), VerbListRecords, "edge-token")
		assert.Contains(t, string(out), "<resumptionToken>edge-token</resumptionToken>")
		assert.NotContains(t, string(out), "native-cursor-1")
		assert.Contains(t, string(out), "oai:repo:2", "records pass through untouched")
	})

	t.Run("inserts when the backend supplied none", func(t *testing.T) {
		body := `<OAI-PMH><ListRecords><record/></ListRecords></OAI-PMH>`
		out := ReplaceResumptionToken([]byte(body), VerbListRecords, "edge-token")
		assert.Equal(t,
			`<OAI-PMH><ListRecords><record/><resumptionToken>edge-token</resumptionToken></ListRecords></OAI-PMH>`,
			string(out))
	})

	t.Run("handles self-closed token element", func(t *testing.T) {
		body := `<OAI-PMH><ListIdentifiers><header/><resumptionToken cursor="9"/></ListIdentifiers></OAI-PMH>`
		out := ReplaceResumptionToken([]byte(body), VerbListIdentifiers, "edge-token")
		assert.Contains(t, string(out), "<resumptionToken>edge-token</resumptionToken>")
		assert.NotContains(t, string(out), `cursor="9"`)
	})

	t.Run("leaves token-shaped metadata inside records intact", func(t *testing.T) {
		body := `<OAI-PMH><ListRecords>` +
			`<record><metadata><resumptionToken>payload</resumptionToken></metadata></record>` +
			`<resumptionToken>native-cursor-1</resumptionToken>` +
			`</ListRecords></OAI-PMH>`
		out := ReplaceResumptionToken([]byte(body), VerbListRecords, "edge-token")
		assert.Contains(t, string(out), "<resumptionToken>payload</resumptionToken>")
		assert.Contains(t, string(out), "<resumptionToken>edge-token</resumptionToken>")
		assert.NotContains(t, string(out), "native-cursor-1")
	})

	t.Run("embedded token without a trailing one gets an insertion", func(t *testing.T) {
		body := `<OAI-PMH><ListRecords><record><metadata><resumptionToken>payload</resumptionToken></metadata></record></ListRecords></OAI-PMH>`
		out := ReplaceResumptionToken([]byte(body), VerbListRecords, "edge-token")
		assert.Contains(t, string(out), "<resumptionToken>payload</resumptionToken>")
		assert.Contains(t, string(out), "<resumptionToken>edge-token</resumptionToken></ListRecords>")
	})

	t.Run("wraps token in a list element when the body has none", func(t *testing.T) {
		body := `<OAI-PMH><request>https://repo.example.org/oai</request><error code="noRecordsMatch">nothing here</error></OAI-PMH>`
		out := ReplaceResumptionToken([]byte(body), VerbListRecords, "edge-token")
		assert.Contains(t, string(out),
			`<ListRecords><resumptionToken>edge-token</resumptionToken></ListRecords></OAI-PMH>`)
		assert.Contains(t, string(out), `<error code="noRecordsMatch">`)
	})
}

func TestStripResumptionToken(t *testing.T) {
	out := StripResumptionToken([]byte(listRecordsBody))
	assert.NotContains(t, string(out), "resumptionToken")
	assert.Contains(t, string(out), "oai:repo:1")
}

func TestStripResumptionTokenLeavesMetadataIntact(t *testing.T) {
	body := `<OAI-PMH><ListRecords><record><metadata><resumptionToken>payload</resumptionToken></metadata></record></ListRecords></OAI-PMH>`
	out := StripResumptionToken([]byte(body))
	assert.Equal(t, body, string(out))
}

func TestErrorDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := ErrorDocument("https://edge.example.org/oai", now, []ValidationError{
		{Code: CodeBadVerb, Message: "Bad verb. Verb 'ListBooks' is not implemented"},
		{Code: CodeBadArgument, Message: "Bad datestamp format for 'from' argument."},
	})
	s := string(out)
	assert.Contains(t, s, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, s, `<responseDate>2024-05-01T12:00:00Z</responseDate>`)
	assert.Contains(t, s, `<request>https://edge.example.org/oai</request>`)
	assert.Contains(t, s, `<error code="badVerb">Bad verb. Verb &#39;ListBooks&#39; is not implemented</error>`)
	assert.Contains(t, s, `<error code="badArgument">`)
}
