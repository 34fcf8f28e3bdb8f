package source

import (
	"context"
	"net/http"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

type zenQuote struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// Quote fetches a random quote from zenquotes.io.
type Quote struct {
	client *Client
	url    string
}

// NewQuote builds the quote source.
func NewQuote(client *Client, cfg config.EndpointConfig) *Quote {
	return &Quote{client: client, url: cfg.URL}
}

// Name implements Source.
func (s *Quote) Name() profile.SourceName { return profile.SourceQuote }

// Fetch implements Source.
func (s *Quote) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{Method: http.MethodGet, URL: s.url})
	if err != nil {
		return nil, err
	}
	var quotes []zenQuote
	if err := decodeJSON(s.Name(), body, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, emptyResult(s.Name(), "quotes")
	}
	return profile.Quotation{Content: quotes[0].Q, Author: quotes[0].A}, nil
}
