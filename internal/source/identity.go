package source

import (
	"context"
	"net/http"
	"strings"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

type randomUserResponse struct {
	Results []struct {
		Gender string `json:"gender"`
		Email  string `json:"email"`
		Name   struct {
			First string `json:"first"`
			Last  string `json:"last"`
		} `json:"name"`
		Location struct {
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"location"`
		Picture struct {
			Large string `json:"large"`
		} `json:"picture"`
	} `json:"results"`
}

// Identity fetches a fake person from randomuser.me.
type Identity struct {
	client *Client
	url    string
}

// NewIdentity builds the identity source.
func NewIdentity(client *Client, cfg config.EndpointConfig) *Identity {
	return &Identity{client: client, url: cfg.URL}
}

// Name implements Source.
func (s *Identity) Name() profile.SourceName { return profile.SourceIdentity }

// Fetch implements Source. Only the first result is used, and it must
// carry a full name and an email.
func (s *Identity) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{Method: http.MethodGet, URL: s.url})
	if err != nil {
		return nil, err
	}
	var resp randomUserResponse
	if err := decodeJSON(s.Name(), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, emptyResult(s.Name(), "results")
	}
	r := resp.Results[0]
	switch {
	case strings.TrimSpace(r.Name.First) == "" || strings.TrimSpace(r.Name.Last) == "":
		return nil, emptyResult(s.Name(), "name")
	case strings.TrimSpace(r.Email) == "":
		return nil, emptyResult(s.Name(), "email")
	}
	return profile.PersonIdentity{
		Name:     r.Name.First + " " + r.Name.Last,
		Email:    r.Email,
		Gender:   r.Gender,
		Location: r.Location.City + ", " + r.Location.Country,
		Picture:  r.Picture.Large,
	}, nil
}
