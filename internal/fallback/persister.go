// Package fallback writes undeliverable aggregates to durable storage.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// DefaultFilename is the fixed name every fallback write replaces.
const DefaultFilename = "user_profile.json"

const contentType = "application/json; charset=utf-8"

// Persister saves an aggregate as pretty-printed JSON under a fixed name.
// Each call overwrites the previous file.
type Persister struct {
	store    profile.BlobStore
	filename string
	logger   *zap.Logger
}

// New builds a Persister on top of a blob store.
func New(store profile.BlobStore, filename string, logger *zap.Logger) (*Persister, error) {
	if store == nil {
		return nil, fmt.Errorf("fallback blob store is required")
	}
	if filename == "" {
		filename = DefaultFilename
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, filename: filename, logger: logger}, nil
}

// Filename returns the name every write goes to.
func (p *Persister) Filename() string {
	return p.filename
}

// Persist writes agg and returns the resulting URI. Failures are
// *profile.PersistError.
func (p *Persister) Persist(ctx context.Context, agg profile.Aggregate) (string, error) {
	data, err := Encode(agg)
	if err != nil {
		return "", &profile.PersistError{Path: p.filename, Err: err}
	}
	uri, err := p.store.PutObject(ctx, p.filename, contentType, bytes.NewReader(data))
	if err != nil {
		return "", &profile.PersistError{Path: p.filename, Err: err}
	}
	p.logger.Info("fallback written", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

// Encode renders agg exactly as it is written to the fallback file.
func Encode(agg profile.Aggregate) ([]byte, error) {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}
	return data, nil
}

// Decode parses a fallback file back into an aggregate.
func Decode(data []byte) (profile.Aggregate, error) {
	var agg profile.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return profile.Aggregate{}, fmt.Errorf("decode aggregate: %w", err)
	}
	return agg, nil
}
