// Package profile defines the composite profile record, the parts it is built
// from, and the interfaces shared by the fetch, delivery and fallback layers.
//
// A run collects one Part from each registered source, assembles them into an
// Aggregate, and hands that Aggregate either to the ingestion endpoint or, when
// delivery fails, to the fallback store. Everything in this package is free of
// I/O so it can be shared by every other layer without import cycles.
package profile
