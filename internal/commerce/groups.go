package commerce

import (
	"context"
	"fmt"
	"strconv"

	"halo-bridge/internal/state"
)

// GroupCache resolves customer group ids to group codes through the KV
// store with a 30-day TTL.
type GroupCache struct {
	client *Client
	store  state.Store
}

func NewGroupCache(client *Client, store state.Store) *GroupCache {
	return &GroupCache{client: client, store: store}
}

// Resolve returns the group code for a customer group id.
func (g *GroupCache) Resolve(ctx context.Context, groupID int) (string, error) {
	key := state.KeyCustomerGroup + strconv.Itoa(groupID)
	if code, err := state.Lookup(ctx, g.store, key); err == nil {
		return code, nil
	}
	// a miss and a cache read failure both fall through to the API

	code, err := GroupCode(g.client.GetCustomerGroup(ctx, groupID))
	if err != nil {
		return "", fmt.Errorf("resolve group %d: %w", groupID, err)
	}
	// cache write failure must not fail the lookup
	_ = g.store.Put(ctx, key, code, state.TTLLookup)
	return code, nil
}
