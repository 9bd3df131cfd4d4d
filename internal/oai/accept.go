package oai

import "regexp"

// The only media type family this gateway produces is text/xml. A value is
// acceptable when it contains any of text/xml, text/*, */xml or */*; media
// type parameters (;q=...) ride along and are ignored by the search.
var acceptableXML = regexp.MustCompile(`(text|\*)\s*/\s*(xml|\*)`)

// NegotiateAccept checks the Accept header values. An absent header is
// accepted as */*. On rejection, offending names the first value that did not
// match, verbatim, for the 406 diagnostic.
func NegotiateAccept(values []string) (ok bool, offending string) {
	if len(values) == 0 {
		return true, ""
	}
	for _, v := range values {
		if acceptableXML.MatchString(v) {
			return true, ""
		}
		if offending == "" {
			offending = v
		}
	}
	return false, offending
}
