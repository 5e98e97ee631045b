// Package state is the single KV abstraction shared by every component.
// All cross-invocation data (tokens, lookup tables, rate cache, audit
// payloads) lives behind Store; components receive it as a capability.
package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"halo-bridge/internal/domain"
)

// TTLs for the well-known key families.
const (
	TTLRateCache = 5 * time.Minute
	TTLLookup    = 30 * 24 * time.Hour
	TTLAudit     = 365 * 24 * time.Hour

	// TokenSafety is subtracted from a token's expires_in so a cached
	// token is never handed out moments before the issuer invalidates it.
	TokenSafety = 300 * time.Second
)

// Key prefixes for persisted state.
const (
	KeyPushedParamPrefix = "halo-pushed-param-"
	KeyPushedXMLPrefix   = "halo-pushed-xml-"
	KeyUPSToken          = "ups-oauth-token"
	KeyCustomerGroup     = "customer-group-"
	KeyHTSCode           = "hts-code-"
	KeyRatePrefix        = "ups-rates-"
)

// Store is a keyed put/get store with per-key TTL. Get reports a miss via
// ok=false; callers must distinguish a miss from an empty stored value.
// Writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// RateCacheKey builds the shipping rate cache key from the destination
// tuple, the package weight and a config salt.
func RateCacheKey(country, postcode, region string, weight float64, salt string) string {
	return KeyRatePrefix + country + "|" + postcode + "|" + region + "|" + formatWeight(weight) + "|" + salt
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// Lookup is Get for callers that treat a miss as an error. A miss
// reports domain.ErrAbsent so it stays distinguishable from an empty
// stored value.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, domain.ErrAbsent)
	}
	return value, nil
}
