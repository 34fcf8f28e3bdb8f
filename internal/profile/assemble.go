package profile

import (
	"fmt"
	"strings"
)

// Part is one normalized value produced by a source.
type Part interface {
	// Source names the source this part belongs to.
	Source() SourceName
	apply(*Aggregate)
}

// Source implements Part.
func (PersonIdentity) Source() SourceName { return SourceIdentity }

// Source implements Part.
func (PhoneNumber) Source() SourceName { return SourcePhone }

// Source implements Part.
func (IBAN) Source() SourceName { return SourceIBAN }

// Source implements Part.
func (PaymentInstrument) Source() SourceName { return SourceCard }

// Source implements Part.
func (GivenName) Source() SourceName { return SourceFirstName }

// Source implements Part.
func (PetName) Source() SourceName { return SourcePet }

// Source implements Part.
func (Quotation) Source() SourceName { return SourceQuote }

// Source implements Part.
func (Jest) Source() SourceName { return SourceJoke }

func (v PersonIdentity) apply(a *Aggregate)    { a.User = v }
func (v PhoneNumber) apply(a *Aggregate)       { a.PhoneNumber = v }
func (v IBAN) apply(a *Aggregate)              { a.IBAN = v }
func (v PaymentInstrument) apply(a *Aggregate) { a.CreditCard = v }
func (v GivenName) apply(a *Aggregate)         { a.RandomName = v }
func (v PetName) apply(a *Aggregate)           { a.Pet = v }
func (v Quotation) apply(a *Aggregate)         { a.Quote = v }
func (v Jest) apply(a *Aggregate)              { a.Joke = v }

// Assemble builds an Aggregate from exactly one part per source.
// Nil parts are ignored; any source left uncovered is an error.
func Assemble(parts ...Part) (Aggregate, error) {
	agg, missing := merge(parts)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return Aggregate{}, fmt.Errorf("assemble aggregate: missing sources: %s", strings.Join(names, ", "))
	}
	return agg, nil
}

// AssemblePartial builds an Aggregate from whatever parts are available and
// lists the uncovered sources in MissingSources.
func AssemblePartial(parts ...Part) Aggregate {
	agg, missing := merge(parts)
	agg.MissingSources = missing
	return agg
}

func merge(parts []Part) (Aggregate, []SourceName) {
	var agg Aggregate
	seen := make(map[SourceName]bool, len(AllSources))
	for _, p := range parts {
		if p == nil {
			continue
		}
		p.apply(&agg)
		seen[p.Source()] = true
	}
	var missing []SourceName
	for _, name := range AllSources {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	return agg, missing
}
