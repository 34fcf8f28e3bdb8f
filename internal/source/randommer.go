package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// Phone fetches a phone number from randommer.io.
type Phone struct {
	client *Client
	url    string
	apiKey string
}

// NewPhone builds the phone source.
func NewPhone(client *Client, cfg config.PhoneConfig, apiKey string) *Phone {
	params := url.Values{}
	if cfg.CountryCode != "" {
		params.Set("CountryCode", cfg.CountryCode)
	}
	if cfg.Quantity > 0 {
		params.Set("Quantity", itoa(cfg.Quantity))
	}
	return &Phone{client: client, url: withQuery(cfg.URL, params), apiKey: apiKey}
}

// Name implements Source.
func (s *Phone) Name() profile.SourceName { return profile.SourcePhone }

// Fetch implements Source.
func (s *Phone) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{
		Method:  http.MethodGet,
		URL:     s.url,
		Headers: randommerHeaders(s.apiKey),
	})
	if err != nil {
		return nil, err
	}
	value, err := cleanedText(s.Name(), body, CleanText)
	if err != nil {
		return nil, err
	}
	return profile.PhoneNumber(value), nil
}

// IBAN fetches a bank account number from randommer.io.
type IBAN struct {
	client *Client
	url    string
	apiKey string
}

// NewIBAN builds the IBAN source; the country code becomes the last path segment.
func NewIBAN(client *Client, cfg config.IBANConfig, apiKey string) *IBAN {
	return &IBAN{client: client, url: withPath(cfg.URL, cfg.CountryCode), apiKey: apiKey}
}

// Name implements Source.
func (s *IBAN) Name() profile.SourceName { return profile.SourceIBAN }

// Fetch implements Source.
func (s *IBAN) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{
		Method:  http.MethodGet,
		URL:     s.url,
		Headers: randommerHeaders(s.apiKey),
	})
	if err != nil {
		return nil, err
	}
	value, err := cleanedText(s.Name(), body, TrimQuotes)
	if err != nil {
		return nil, err
	}
	return profile.IBAN(value), nil
}

type cardResponse struct {
	Type       string `json:"type"`
	Date       string `json:"date"`
	CardNumber string `json:"cardNumber"`
	CVV        string `json:"cvv"`
}

// Card fetches a payment card from randommer.io.
type Card struct {
	client *Client
	url    string
	apiKey string
}

// NewCard builds the card source.
func NewCard(client *Client, cfg config.CardConfig, apiKey string) *Card {
	params := url.Values{}
	if cfg.Type != "" {
		params.Set("type", cfg.Type)
	}
	return &Card{client: client, url: withQuery(cfg.URL, params), apiKey: apiKey}
}

// Name implements Source.
func (s *Card) Name() profile.SourceName { return profile.SourceCard }

// Fetch implements Source. The expiration keeps only the upstream year.
func (s *Card) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{
		Method:  http.MethodGet,
		URL:     s.url,
		Headers: randommerHeaders(s.apiKey),
	})
	if err != nil {
		return nil, err
	}
	var resp cardResponse
	if err := decodeJSON(s.Name(), body, &resp); err != nil {
		return nil, err
	}
	if resp.CardNumber == "" {
		return nil, emptyResult(s.Name(), "card number")
	}
	return profile.PaymentInstrument{
		CardNumber:     resp.CardNumber,
		CardType:       resp.Type,
		ExpirationDate: ExpirationFromDate(resp.Date),
		CVV:            resp.CVV,
	}, nil
}

// FirstName fetches a first name from randommer.io.
type FirstName struct {
	client *Client
	url    string
	apiKey string
}

// NewFirstName builds the first name source.
func NewFirstName(client *Client, cfg config.NameConfig, apiKey string) *FirstName {
	params := url.Values{}
	if cfg.NameType != "" {
		params.Set("nameType", cfg.NameType)
	}
	if cfg.Quantity > 0 {
		params.Set("quantity", itoa(cfg.Quantity))
	}
	return &FirstName{client: client, url: withQuery(cfg.URL, params), apiKey: apiKey}
}

// Name implements Source.
func (s *FirstName) Name() profile.SourceName { return profile.SourceFirstName }

// Fetch implements Source.
func (s *FirstName) Fetch(ctx context.Context) (profile.Part, error) {
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{
		Method:  http.MethodGet,
		URL:     s.url,
		Headers: randommerHeaders(s.apiKey),
	})
	if err != nil {
		return nil, err
	}
	var names []string
	if err := decodeJSON(s.Name(), body, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 || names[0] == "" {
		return nil, emptyResult(s.Name(), "names")
	}
	return profile.GivenName(names[0]), nil
}

// Pet posts the randommer.io pet name form. It needs no API key but the
// endpoint only answers XHR-style requests.
type Pet struct {
	client *Client
	url    string
	form   url.Values
}

// NewPet builds the pet name source.
func NewPet(client *Client, cfg config.PetConfig) *Pet {
	form := url.Values{}
	form.Set("animal", cfg.Animal)
	form.Set("number", itoa(cfg.Number))
	return &Pet{client: client, url: cfg.URL, form: form}
}

// Name implements Source.
func (s *Pet) Name() profile.SourceName { return profile.SourcePet }

// Fetch implements Source.
func (s *Pet) Fetch(ctx context.Context) (profile.Part, error) {
	headers := http.Header{}
	headers.Set("X-Requested-With", "XMLHttpRequest")
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := s.client.Fetch(ctx, s.Name(), profile.FetchRequest{
		Method:  http.MethodPost,
		URL:     s.url,
		Headers: headers,
		Body:    []byte(s.form.Encode()),
	})
	if err != nil {
		return nil, err
	}
	value, err := cleanedText(s.Name(), body, CleanText)
	if err != nil {
		return nil, err
	}
	return profile.PetName(value), nil
}
