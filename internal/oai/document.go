package oai

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"time"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Summary is the slice of a backend response the harvest engine inspects:
// whether a list body is present, how many records or headers it carries,
// the backend's own resumption token, and the echoed request parameters used
// to rebuild harvesting state when minting compound tokens.
type Summary struct {
	HasList         bool
	Records         int
	ResumptionToken string
	ErrorCode       string
	ErrorMessage    string
	EchoedPrefix    string
	EchoedFrom      string
	EchoedUntil     string
}

type listBody struct {
	Records []struct{} `xml:"record"`
	Headers []struct{} `xml:"header"`
	Token   struct {
		Value string `xml:",chardata"`
	} `xml:"resumptionToken"`
}

type envelope struct {
	Request struct {
		MetadataPrefix string `xml:"metadataPrefix,attr"`
		From           string `xml:"from,attr"`
		Until          string `xml:"until,attr"`
	} `xml:"request"`
	ListRecords     *listBody `xml:"ListRecords"`
	ListIdentifiers *listBody `xml:"ListIdentifiers"`
	Error           *struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
}

// Inspect parses the fields of an OAI-PMH response body the engine cares
// about. The body itself stays opaque; records are counted, never decoded.
func Inspect(body []byte) (Summary, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return Summary{}, fmt.Errorf("parse OAI-PMH response: %w", err)
	}

	s := Summary{
		EchoedPrefix: env.Request.MetadataPrefix,
		EchoedFrom:   env.Request.From,
		EchoedUntil:  env.Request.Until,
	}
	if env.Error != nil {
		s.ErrorCode = env.Error.Code
		s.ErrorMessage = env.Error.Message
	}
	switch {
	case env.ListRecords != nil:
		s.HasList = true
		s.Records = len(env.ListRecords.Records)
		s.ResumptionToken = env.ListRecords.Token.Value
	case env.ListIdentifiers != nil:
		s.HasList = true
		s.Records = len(env.ListIdentifiers.Headers)
		s.ResumptionToken = env.ListIdentifiers.Token.Value
	}
	return s, nil
}

var resumptionTokenElem = regexp.MustCompile(`<resumptionToken\b[^>]*(?:/>|>[^<]*</resumptionToken>)`)

// ReplaceResumptionToken rewrites the body so its resumption token element
// carries exactly token. The list's trailing element (attributes included) is
// replaced; otherwise the element is inserted just before the list verb's
// closing tag, or as a minimal list element before the envelope's close when
// the body carries no list at all (a protocol error document, say) — a minted
// token must never be dropped, the remaining tenants would be unreachable.
// The rest of the body passes through byte for byte.
func ReplaceResumptionToken(body []byte, verb, token string) []byte {
	elem := []byte("<resumptionToken>" + token + "</resumptionToken>")
	if loc := trailingTokenElem(body); loc != nil {
		return splice(body, loc[0], loc[1], elem)
	}
	if idx := bytes.LastIndex(body, []byte("</"+verb+">")); idx >= 0 {
		return splice(body, idx, idx, elem)
	}
	if idx := bytes.LastIndex(body, []byte("</OAI-PMH>")); idx >= 0 {
		wrapped := []byte("<" + verb + ">" + string(elem) + "</" + verb + ">")
		return splice(body, idx, idx, wrapped)
	}
	return body
}

// StripResumptionToken removes the list's resumption token element from the
// body. Used at end-of-sequence, where a leftover backend token would invite
// the harvester to continue a finished harvest.
func StripResumptionToken(body []byte) []byte {
	loc := trailingTokenElem(body)
	if loc == nil {
		return body
	}
	return splice(body, loc[0], loc[1], nil)
}

// trailingTokenElem locates the list's own resumption token element: the last
// token-shaped match, and only when it sits after every record and header.
// A matching element embedded in harvested metadata is payload, not state.
func trailingTokenElem(body []byte) []int {
	locs := resumptionTokenElem.FindAllIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}
	loc := locs[len(locs)-1]
	if loc[0] < bytes.LastIndex(body, []byte("</record>")) ||
		loc[0] < bytes.LastIndex(body, []byte("</header>")) {
		return nil
	}
	return loc
}

func splice(body []byte, start, end int, insert []byte) []byte {
	out := make([]byte, 0, len(body)-(end-start)+len(insert))
	out = append(out, body[:start]...)
	out = append(out, insert...)
	out = append(out, body[end:]...)
	return out
}

type xmlError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type errorDocument struct {
	XMLName        xml.Name   `xml:"OAI-PMH"`
	Xmlns          string     `xml:"xmlns,attr"`
	XmlnsXSI       string     `xml:"xmlns:xsi,attr"`
	SchemaLocation string     `xml:"xsi:schemaLocation,attr"`
	ResponseDate   string     `xml:"responseDate"`
	Request        string     `xml:"request"`
	Errors         []xmlError `xml:"error"`
}

// ErrorDocument renders a protocol-compliant error envelope for rejections
// the gateway produces itself (validation failures, bad tokens).
func ErrorDocument(baseURL string, now time.Time, errs []ValidationError) []byte {
	doc := errorDocument{
		Xmlns:          "http://www.openarchives.org/OAI/2.0/",
		XmlnsXSI:       "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: "http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd",
		ResponseDate:   now.UTC().Format("2006-01-02T15:04:05Z"),
		Request:        baseURL,
	}
	for _, e := range errs {
		doc.Errors = append(doc.Errors, xmlError{Code: string(e.Code), Message: e.Message})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		// Marshalling a struct of strings cannot fail; keep the signature lean.
		panic(err)
	}
	return append([]byte(xmlHeader), out...)
}
