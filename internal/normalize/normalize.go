// Package normalize provides deterministic, idempotent canonicalization
// of the fields used for match scoring: email, phone, and address.
package normalize

import (
	"regexp"
	"strings"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

var digitsOnlyRe = regexp.MustCompile(`\D`)

// addressTokenReplacements expands street-type and directional
// abbreviations to a single canonical spelling. Applied on word
// boundaries so "street" in "Streetlight Ave" is left alone.
var addressTokenReplacements = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`\bstreet\b`), "st"},
	{regexp.MustCompile(`\bavenue\b`), "ave"},
	{regexp.MustCompile(`\bboulevard\b`), "blvd"},
	{regexp.MustCompile(`\bdrive\b`), "dr"},
	{regexp.MustCompile(`\broad\b`), "rd"},
	{regexp.MustCompile(`\blane\b`), "ln"},
	{regexp.MustCompile(`\bcourt\b`), "ct"},
	{regexp.MustCompile(`\bapartment\b`), "apt"},
	{regexp.MustCompile(`\bsuite\b`), "ste"},
	{regexp.MustCompile(`\bnorth\b`), "n"},
	{regexp.MustCompile(`\bsouth\b`), "s"},
	{regexp.MustCompile(`\beast\b`), "e"},
	{regexp.MustCompile(`\bwest\b`), "w"},
}

// Email trims and lowercases an email address. An empty result after
// trimming normalizes to "".
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Phone strips every non-digit character. The result is still returned
// even when shorter than 10 digits — callers that need a usable match
// key should check PhoneMatchKey instead.
func Phone(raw string) string {
	return digitsOnlyRe.ReplaceAllString(raw, "")
}

// PhoneMatchKey returns the normalized phone, or "" if it has fewer
// than 10 digits and therefore cannot serve as an exact-match key.
func PhoneMatchKey(raw string) string {
	p := Phone(raw)
	if len(p) < 10 {
		return ""
	}
	return p
}

// Address lowercases, trims, expands common abbreviations on word
// boundaries, and collapses whitespace runs to single spaces.
func Address(raw string) string {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return ""
	}

	for _, r := range addressTokenReplacements {
		addr = r.pattern.ReplaceAllString(addr, r.repl)
	}

	addr = multiSpaceRe.ReplaceAllString(addr, " ")
	return strings.TrimSpace(addr)
}
