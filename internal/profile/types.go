package profile

import (
	"net/http"
	"time"
)

// SourceName identifies one upstream data source.
type SourceName string

// Known sources, in the order the orchestrator registers them.
const (
	SourceIdentity  SourceName = "identity"
	SourcePhone     SourceName = "phone"
	SourceIBAN      SourceName = "iban"
	SourceCard      SourceName = "card"
	SourceFirstName SourceName = "name"
	SourcePet       SourceName = "pet"
	SourceQuote     SourceName = "quote"
	SourceJoke      SourceName = "joke"
)

// AllSources lists every source an Aggregate needs.
var AllSources = []SourceName{
	SourceIdentity,
	SourcePhone,
	SourceIBAN,
	SourceCard,
	SourceFirstName,
	SourcePet,
	SourceQuote,
	SourceJoke,
}

// PersonIdentity is the fake person produced by the identity source.
type PersonIdentity struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	Location string `json:"location"`
	Picture  string `json:"picture"`
}

// PaymentInstrument is a generated payment card. ExpirationDate is MM/YYYY.
type PaymentInstrument struct {
	CardNumber     string `json:"card_number"`
	CardType       string `json:"card_type"`
	ExpirationDate string `json:"expiration_date"`
	CVV            string `json:"cvv"`
}

// PhoneNumber is a generated phone number.
type PhoneNumber string

// IBAN is a generated bank account number.
type IBAN string

// GivenName is a generated first name, unrelated to PersonIdentity.Name.
type GivenName string

// PetName is a generated pet name.
type PetName string

// Quotation is a quote with its attributed author.
type Quotation struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// Jest is a single-part joke with its category.
type Jest struct {
	Category string `json:"type"`
	Content  string `json:"content"`
}

// Aggregate is the composite record delivered downstream or persisted on failure.
type Aggregate struct {
	User        PersonIdentity    `json:"user"`
	PhoneNumber PhoneNumber       `json:"phone_number"`
	IBAN        IBAN              `json:"iban"`
	CreditCard  PaymentInstrument `json:"credit_card"`
	RandomName  GivenName         `json:"random_name"`
	Pet         PetName           `json:"pet"`
	Quote       Quotation         `json:"quote"`
	Joke        Jest              `json:"joke"`

	// MissingSources is only populated by best-effort assembly.
	MissingSources []SourceName `json:"missing_sources,omitempty"`
}

// State is a step of the run state machine.
type State string

// Run states.
const (
	StateFetching    State = "fetching"
	StateAssembling  State = "assembling"
	StateDelivering  State = "delivering"
	StateFallingBack State = "falling_back"
	StateDone        State = "done"
)

// Outcome is the terminal result of a run.
type Outcome string

// Run outcomes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFallback  Outcome = "fallback"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// SourceFailure records why one source did not contribute.
type SourceFailure struct {
	Source SourceName  `json:"source"`
	Kind   FailureKind `json:"kind"`
	Error  string      `json:"error"`
}

// RunRecord is the metadata kept for each run. It never carries profile data.
type RunRecord struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Outcome        Outcome         `json:"outcome"`
	FailedSources  []SourceFailure `json:"failed_sources,omitempty"`
	DeliveryStatus int             `json:"delivery_status,omitempty"`
	FallbackURI    string          `json:"fallback_uri,omitempty"`
	ErrorText      string          `json:"error_text,omitempty"`
}

// FetchRequest describes one outbound HTTP call.
type FetchRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// FetchResponse is the raw result of an outbound HTTP call.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// IsSuccess reports whether the status code is 2xx.
func (r FetchResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
