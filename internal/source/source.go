package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// Source produces one part of an aggregate.
type Source interface {
	Name() profile.SourceName
	Fetch(ctx context.Context) (profile.Part, error)
}

// Registry is the ordered list of sources a run fetches.
type Registry struct {
	sources []Source
}

// NewRegistry builds a registry, rejecting nil and duplicate sources.
func NewRegistry(sources ...Source) (*Registry, error) {
	seen := make(map[profile.SourceName]bool, len(sources))
	kept := make([]Source, 0, len(sources))
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("source %d is nil", i)
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("duplicate source %q", s.Name())
		}
		seen[s.Name()] = true
		kept = append(kept, s)
	}
	return &Registry{sources: kept}, nil
}

// Sources returns the registered sources in registration order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Names lists the registered source names.
func (r *Registry) Names() []profile.SourceName {
	names := make([]profile.SourceName, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// FromConfig builds every source from configuration, in profile.AllSources order.
func FromConfig(cfg config.SourcesConfig, client *Client) (*Registry, error) {
	if client == nil {
		return nil, fmt.Errorf("source client is required")
	}
	endpoints := map[profile.SourceName]string{
		profile.SourceIdentity:  cfg.Identity.URL,
		profile.SourcePhone:     cfg.Phone.URL,
		profile.SourceIBAN:      cfg.IBAN.URL,
		profile.SourceCard:      cfg.Card.URL,
		profile.SourceFirstName: cfg.Name.URL,
		profile.SourcePet:       cfg.Pet.URL,
		profile.SourceQuote:     cfg.Quote.URL,
		profile.SourceJoke:      cfg.Joke.URL,
	}
	for _, name := range profile.AllSources {
		if err := validateEndpoint(endpoints[name]); err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
	}

	key := cfg.Randommer.APIKey
	return NewRegistry(
		NewIdentity(client, cfg.Identity),
		NewPhone(client, cfg.Phone, key),
		NewIBAN(client, cfg.IBAN, key),
		NewCard(client, cfg.Card, key),
		NewFirstName(client, cfg.Name, key),
		NewPet(client, cfg.Pet),
		NewQuote(client, cfg.Quote),
		NewJoke(client, cfg.Joke),
	)
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	return nil
}

// withQuery appends params to base, keeping any query base already has.
func withQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}

// withPath appends one escaped path segment to base.
func withPath(base, segment string) string {
	if segment == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(segment)
}

func randommerHeaders(apiKey string) http.Header {
	h := http.Header{}
	if apiKey != "" {
		h.Set("X-Api-Key", apiKey)
	}
	return h
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
