package transform

import (
	"fmt"
	"strings"

	"github.com/robbyt/go-polytransform/internal/helpers"
)

// inlineMarker introduces an inline script body and prefixes the identifiers
// derived from one, so they can never clash with a registry UID.
const inlineMarker = "|"

// inlineChecksumLength is the number of hex characters of the body checksum
// kept in a content-derived identifier.
const inlineChecksumLength = 12

// funcSpec is the parsed form of a transformation function string.
type funcSpec struct {
	// uid is the script identifier: a registry UID for the named form, or
	// inlineMarker plus a truncated checksum of the body for the inline form.
	uid string

	// inlineScript holds the literal script body for the inline form, empty
	// for the named form.
	inlineScript string

	// rawParams is the undecoded "k=v&k2=v2" parameter string of the named
	// form, empty when absent.
	rawParams string
}

// parseFuncSpec parses a function string into a funcSpec.
//
// Two mutually exclusive grammars are recognized:
//   - inline: "|<script>"; the identifier is derived from a checksum of the
//     body so identical inline scripts share one cache entry
//   - named: "<uid>[?<params>]"; the first '?' divides identifier from params
//
// Inline bodies longer than maxScriptSize fail before any cache interaction.
func parseFuncSpec(function string, maxScriptSize int) (*funcSpec, error) {
	if body, ok := strings.CutPrefix(function, inlineMarker); ok && body != "" {
		if len(body) > maxScriptSize {
			return nil, fmt.Errorf("%w: inline script is %d characters, maximum is %d",
				ErrScriptTooLarge, len(body), maxScriptSize)
		}

		uid := inlineMarker + helpers.SHA256(body)[:inlineChecksumLength]
		return &funcSpec{uid: uid, inlineScript: body}, nil
	}

	uid, params, _ := strings.Cut(function, "?")
	if uid == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedFunction, function)
	}

	return &funcSpec{uid: uid, rawParams: params}, nil
}
