package decision

import "sync"

// KeyPool rotates across multiple API keys round-robin so a single
// key's per-minute quota does not throttle the decision cadence.
type KeyPool struct {
	keys []string
	next int
	mu   sync.Mutex
}

// NewKeyPool creates a pool from the configured keys. An empty pool is
// valid; Next then returns "".
func NewKeyPool(keys []string) *KeyPool {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}
	return &KeyPool{keys: filtered}
}

// Next returns the next key in rotation.
func (p *KeyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	key := p.keys[p.next]
	p.next = (p.next + 1) % len(p.keys)
	return key
}

// Size returns the number of usable keys.
func (p *KeyPool) Size() int {
	return len(p.keys)
}
