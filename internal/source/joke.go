package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

type jokeResponse struct {
	Error    bool   `json:"error"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Joke     string `json:"joke"`
}

// Joke fetches a single-part joke from jokeapi.dev.
type Joke struct {
	client *Client
	url    string
}

// NewJoke builds the joke source. Categories form the last path segment.
func NewJoke(client *Client, cfg config.JokeConfig) *Joke {
	base := cfg.URL
	if len(cfg.Categories) > 0 {
		base = strings.TrimRight(base, "/") + "/" + strings.Join(cfg.Categories, ",")
	}
	params := url.Values{}
	if len(cfg.BlacklistFlags) > 0 {
		params.Set("blacklistFlags", strings.Join(cfg.BlacklistFlags, ","))
	}
	if cfg.Type != "" {
		params.Set("type", cfg.Type)
	}
	return &Joke{client: client, url: withQuery(base, params)}
}

// Name implements Source.
func (s *Joke) Name() profile.SourceName { return profile.SourceJoke }

// Fetch implements Source.
func (s *Joke) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{Method: http.MethodGet, URL: s.url})
	if err != nil {
		return nil, err
	}
	var resp jokeResponse
	if err := decodeJSON(s.Name(), body, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &profile.FetchError{
			Source: s.Name(),
			Kind:   profile.FailureParse,
			Err:    fmt.Errorf("upstream reported error: %s", resp.Message),
		}
	}
	if resp.Joke == "" {
		return nil, emptyResult(s.Name(), "joke")
	}
	return profile.Jest{Category: resp.Category, Content: resp.Joke}, nil
}
