package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/synqx/core/internal/logging"
)

// poolEphemeralKeys are excluded from the fingerprint so that per-call
// metadata never fragments the pool (§4.1, Glossary "Pool fingerprint").
var poolEphemeralKeys = map[string]struct{}{
	"execution_context": {},
	"ui":                {},
	"connection_id":     {},
}

// Fingerprint returns the SHA-256 hex digest of the canonical JSON of
// (kind, config-sans-ephemeral-keys, options). Go's json.Marshal already
// sorts map keys alphabetically, which gives us the permutation-invariance
// testable property 9 requires for free.
func Fingerprint(kind string, config map[string]any, options map[string]any) (string, error) {
	filtered := make(map[string]any, len(config))
	for k, v := range config {
		if _, skip := poolEphemeralKeys[k]; skip {
			continue
		}
		filtered[k] = v
	}

	payload := struct {
		Kind    string         `json:"kind"`
		Config  map[string]any `json:"config"`
		Options map[string]any `json:"options"`
	}{Kind: kind, Config: filtered, Options: options}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

type poolEntry struct {
	conn Connector
}

// Pool caches connected Connector instances keyed by Fingerprint so that
// concurrent callers using the same Connection share one engine on a host
// (§4.1 "engine pool").
type Pool struct {
	mu       sync.Mutex
	entries  map[string]*poolEntry
	registry *Registry
	log      *logging.Logger
}

// NewPool returns a Pool backed by registry.
func NewPool(registry *Registry) *Pool {
	return &Pool{entries: make(map[string]*poolEntry), registry: registry, log: logging.NewDefault("connector.pool")}
}

// Acquire returns a connected Connector for (kind, config, options),
// reusing a cached entry when the fingerprint matches.
func (p *Pool) Acquire(ctx context.Context, kind string, config map[string]any, options map[string]any) (Connector, error) {
	fp, err := Fingerprint(kind, config, options)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if entry, ok := p.entries[fp]; ok {
		p.mu.Unlock()
		return entry.conn, nil
	}
	p.mu.Unlock()

	conn, err := p.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if err := conn.ValidateConfig(config); err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx, StripEphemeralKeys(config)); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if entry, ok := p.entries[fp]; ok {
		p.mu.Unlock()
		_ = conn.Disconnect(ctx)
		return entry.conn, nil
	}
	p.entries[fp] = &poolEntry{conn: conn}
	p.mu.Unlock()

	return conn, nil
}

// Dispose disconnects every pooled entry and empties the pool. Pool is not a
// system.Service, so system.Manager.Stop does not call it.
func (p *Pool) Dispose(ctx context.Context) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := entries[k].conn.Disconnect(ctx); err != nil {
			p.log.WithField("fingerprint", k).WithField("error", err.Error()).Warn("error disposing pooled connector")
		}
	}
}

// Size reports the number of live pooled entries (used by tests and health
// reporting).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
