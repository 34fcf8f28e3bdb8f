package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`["0612345678"]`, "0612345678"},
		{`["Rex"]` + "\n", "Rex"},
		{`"FR7630006000011234567890189"`, "FR7630006000011234567890189"},
		{`[["nested"]]`, "nested"},
		{"plain", "plain"},
		{`[]`, ""},
		{`[""]`, ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in), "CleanText(%q)", tt.in)
	}
}

func TestTrimQuotes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FR76300", TrimQuotes(` "FR76300" `))
	assert.Equal(t, "[x]", TrimQuotes(`"[x]"`))
}

func TestExpirationFromDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		date string
		want string
	}{
		{"iso date", "2026-05-15", "12/2026"},
		{"future year", "2031-01-01T00:00:00", "12/2031"},
		{"year only", "2029", "12/2029"},
		{"empty", "", "12/2026"},
		{"garbage", "not-a-date", "12/2026"},
		{"short year", "26-05-15", "12/2026"},
		{"non ascii digits", "２０２７-01-01", "12/2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpirationFromDate(tt.date))
		})
	}
}
