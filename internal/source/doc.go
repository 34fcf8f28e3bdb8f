// Package source implements the upstream data sources that feed an
// aggregate. Every source shares one Client, which layers per-host rate
// limiting, per-attempt timeouts and bounded retries over a
// profile.Requester, and maps each response into its profile.Part.
package source
