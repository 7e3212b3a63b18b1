package dispatch

import (
	"strings"
)

// Verbs with dedicated handling. Everything else is forwarded to the radio.
const (
	VerbLogin          = "LOGIN"
	VerbPair           = "PAIR"
	VerbPairStatus     = "PAIR_STATUS"
	VerbInfo           = "INFO"
	VerbIdentity       = "MONARK_ID"
	VerbUpdate         = "UPDATE"
	VerbChangePassword = "AT+MSPWD"
)

// Request is one controller line: VERB or VERB=v1,v2,...
type Request struct {
	Raw   string
	Verb  string
	Value string
}

// Values splits the value list. Fields are trimmed; empty fields are kept.
func (r Request) Values() []string {
	if r.Value == "" {
		return nil
	}
	parts := strings.Split(r.Value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseRequest splits line at the first '='. The verb is upper-cased.
func ParseRequest(line string) Request {
	raw := strings.TrimSpace(line)
	verb, value, _ := strings.Cut(raw, "=")
	return Request{
		Raw:   raw,
		Verb:  strings.ToUpper(strings.TrimSpace(verb)),
		Value: strings.TrimSpace(value),
	}
}
