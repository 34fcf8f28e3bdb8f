package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// Payment cards always expire in December; only the year comes from upstream.
const (
	ExpiryMonth       = "12"
	DefaultExpiryYear = "2026"
)

// CleanText strips surrounding whitespace, then every leading and trailing
// '[', then ']', then '"'. It turns a one-element JSON array of strings such
// as ["0612345678"] into its bare value.
func CleanText(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "[")
	s = strings.Trim(s, "]")
	return strings.Trim(s, `"`)
}

// TrimQuotes strips surrounding whitespace and double quotes.
func TrimQuotes(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

// ExpirationFromDate formats MM/YYYY from a YYYY-MM-DD style date. The year is
// the text before the first '-'; anything that is not four ASCII digits is
// replaced by DefaultExpiryYear.
func ExpirationFromDate(date string) string {
	year, _, _ := strings.Cut(strings.TrimSpace(date), "-")
	if !isYear(year) {
		year = DefaultExpiryYear
	}
	return ExpiryMonth + "/" + year
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func decodeJSON(name profile.SourceName, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &profile.FetchError{Source: name, Kind: profile.FailureParse, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func emptyResult(name profile.SourceName, what string) error {
	return &profile.FetchError{Source: name, Kind: profile.FailureEmpty, Err: fmt.Errorf("%s: %w", what, profile.ErrEmptyResult)}
}

// cleanedText applies clean to body and rejects an empty result.
func cleanedText(name profile.SourceName, body []byte, clean func(string) string) (string, error) {
	value := clean(string(body))
	if value == "" {
		return "", emptyResult(name, "cleaned text")
	}
	return value, nil
}
