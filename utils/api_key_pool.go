package utils

import (
	"errors"
	"sync"
	"time"
)

// ErrNoAvailableKeys is returned when every key is blacklisted
var ErrNoAvailableKeys = errors.New("no available API keys")

// APIKeyPool hands out speech API keys, preferring the least used one and
// skipping keys that were recently rate limited.
type APIKeyPool struct {
	keys      []string
	usage     map[string]int
	blacklist map[string]time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// KeyPoolStats is a snapshot of pool usage
type KeyPoolStats struct {
	Total       int
	Available   int
	Blacklisted int
	Usage       map[string]int
}

// NewAPIKeyPool creates a new API key pool. Returns nil when keys is empty.
func NewAPIKeyPool(keys []string) *APIKeyPool {
	if len(keys) == 0 {
		return nil
	}
	return &APIKeyPool{
		keys:      append([]string(nil), keys...),
		usage:     make(map[string]int),
		blacklist: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Acquire returns the least used key that is not blacklisted
func (p *APIKeyPool) Acquire() (string, error) {
	if p == nil {
		return "", ErrNoAvailableKeys
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	selected := ""
	for _, key := range p.keys {
		if until, ok := p.blacklist[key]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.blacklist, key)
		}
		if selected == "" || p.usage[key] < p.usage[selected] {
			selected = key
		}
	}
	if selected == "" {
		return "", ErrNoAvailableKeys
	}
	p.usage[selected]++
	return selected, nil
}

// MarkFailed blacklists a key for retryAfter
func (p *APIKeyPool) MarkFailed(key string, retryAfter time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blacklist[key] = p.now().Add(retryAfter)
}

// Stats returns usage statistics
func (p *APIKeyPool) Stats() KeyPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	blacklisted := 0
	for _, until := range p.blacklist {
		if now.Before(until) {
			blacklisted++
		}
	}
	usage := make(map[string]int, len(p.usage))
	for k, v := range p.usage {
		usage[k] = v
	}
	return KeyPoolStats{
		Total:       len(p.keys),
		Available:   len(p.keys) - blacklisted,
		Blacklisted: blacklisted,
		Usage:       usage,
	}
}
