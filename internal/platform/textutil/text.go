// Package textutil normalises user-supplied free text before it is stored or compared.
package textutil

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	whitespace = regexp.MustCompile(`\s+`)
	folder     = cases.Fold()
)

func strictPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// CleanText strips markup and control characters, applies NFC normalisation, collapses runs
// of whitespace and truncates to limit runes. A non-positive limit disables truncation.
func CleanText(value string, limit int) string {
	value = strictPolicy().Sanitize(value)
	value = unescapeBasic(value)
	value = norm.NFC.String(value)
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, value)
	value = strings.TrimSpace(whitespace.ReplaceAllString(value, " "))
	if limit > 0 {
		if runes := []rune(value); len(runes) > limit {
			value = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return value
}

// NormalizeEmail trims, NFC-normalises and lowercases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(value)))
}

// EqualFold compares two strings after NFC normalisation and Unicode case folding.
func EqualFold(a, b string) bool {
	return folder.String(norm.NFC.String(strings.TrimSpace(a))) == folder.String(norm.NFC.String(strings.TrimSpace(b)))
}

// bluemonday escapes the characters it keeps; stored values are plain text, not HTML.
var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&#34;", `"`,
	"&#39;", "'",
	"&quot;", `"`,
)

func unescapeBasic(value string) string {
	return htmlEntities.Replace(value)
}
