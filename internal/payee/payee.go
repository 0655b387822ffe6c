// Package payee resolves the ambiguous NAME/MEMO split on bank-statement lines.
package payee

import "strings"

// Normalize resolves raw NAME and MEMO fields into a clean payee and optional
// memo. Banks frequently truncate the displayed NAME field to the first N
// characters of a longer MEMO; treating the truncated name as the real payee
// causes spurious distinct-payee grouping downstream, so the fuller memo is
// preferred whenever it provably contains the name as a prefix.
//
// An empty returned payee means no usable name exists on the line; callers
// treat that as a fatal per-transaction error.
func Normalize(rawName, rawMemo string) (payee, memo string) {
	name := collapseWhitespace(rawName)
	memoNorm := collapseWhitespace(rawMemo)

	if name == "" {
		return memoNorm, ""
	}

	// Truncated duplicate: the memo starts with the name, case-insensitively.
	if memoNorm != "" && strings.HasPrefix(strings.ToLower(memoNorm), strings.ToLower(name)) {
		return memoNorm, ""
	}

	return name, memoNorm
}

// collapseWhitespace trims the string and collapses runs of whitespace to
// single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
