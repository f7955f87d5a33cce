// Package providers keeps the provider health table and model metrics.
//
// Provider rows are replaced by pulls and patched by provider_status events.
// Both paths honour last_checked as the recency key. Model metrics are
// pull-only.
package providers
