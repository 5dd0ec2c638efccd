// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend provides the backend registry, the remote Manager and the
// primary storage backends. All backends implement types.Backend.
package backend

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates a Backend from config. Overlays use the resolver to reach
// the backend they wrap; primary backends ignore it.
type Factory func(cfg types.BackendConfig, r types.Resolver) (types.Backend, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// Registered returns the registered storage types in sorted order
func Registered() []types.StorageType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]types.StorageType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func isRegistered(t types.StorageType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[t]
	return ok
}

// New creates a Backend from config
func New(cfg types.BackendConfig, r types.Resolver) (types.Backend, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, &types.ConfigError{Option: "type", Reason: fmt.Sprintf("unknown storage type: %s", cfg.Type)}
	}
	return f(cfg, r)
}

// ParseRef splits a remote reference "name:sub/path" into its parts.
// The sub path has no leading slash and may be empty.
func ParseRef(ref string) (name, path string, err error) {
	name, path, ok := strings.Cut(ref, ":")
	if !ok || name == "" {
		return "", "", &types.ConfigError{Option: "remote", Reason: fmt.Sprintf("remote reference %q must look like name:path", ref)}
	}
	return name, types.CleanPath(path), nil
}

// ResolveRemote looks up the backend an overlay of type t wraps
func ResolveRemote(t types.StorageType, r types.Resolver, ref string) (types.Backend, error) {
	if r == nil {
		return nil, types.NewConfigError(t, "remote", "no resolver to look up %q", ref)
	}
	inner, err := r.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve %q: %w", t, ref, err)
	}
	return inner, nil
}

// Manager tracks named remotes and resolves references between them
type Manager struct {
	mu       sync.RWMutex
	backends map[string]types.Backend
	configs  map[string]types.BackendConfig
}

// NewManager creates a backend manager
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]types.Backend),
		configs:  make(map[string]types.BackendConfig),
	}
}

// Define records a remote without creating it. The backend is built on
// first use, so remotes may reference each other in any order.
func (m *Manager) Define(name string, cfg types.BackendConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.backends[name]; exists {
		old.Close()
		delete(m.backends, name)
	}
	m.configs[name] = cfg
}

// Add creates and registers a remote
func (m *Manager) Add(name string, cfg types.BackendConfig) error {
	m.Define(name, cfg)
	if _, err := m.backend(name, nil); err != nil {
		m.mu.Lock()
		delete(m.configs, name)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Get retrieves a remote by name, creating it if it was only defined
func (m *Manager) Get(name string) (types.Backend, bool) {
	b, err := m.backend(name, nil)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Config returns the configuration a remote was defined with
func (m *Manager) Config(name string) (types.BackendConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[name]
	return cfg, ok
}

// Resolve implements types.Resolver. A non-empty sub path wraps the named
// remote in an alias overlay rooted at that path, so the alias package must
// be linked in (the chunker and crypt packages import it).
func (m *Manager) Resolve(ref string) (types.Backend, error) {
	return m.resolve(ref, nil)
}

func (m *Manager) resolve(ref string, chain []string) (types.Backend, error) {
	name, sub, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	b, err := m.backend(name, chain)
	if err != nil {
		return nil, err
	}
	sub = strings.TrimSuffix(sub, "/")
	if sub == "" {
		return b, nil
	}
	if !isRegistered(types.StorageTypeAlias) {
		return nil, &types.ConfigError{Option: "remote", Reason: fmt.Sprintf("%q has a sub path but the alias backend is not registered; import github.com/LeeDigitalWorks/stackfs/pkg/alias", ref)}
	}
	return New(types.BackendConfig{
		Type:    types.StorageTypeAlias,
		Options: map[string]string{"remote": name + ":", "root": sub},
	}, &chainResolver{m: m, chain: chain})
}

func (m *Manager) backend(name string, chain []string) (types.Backend, error) {
	if slices.Contains(chain, name) {
		return nil, &types.ConfigError{Option: "remote", Reason: fmt.Sprintf("remote %q references itself via %s", name, strings.Join(chain, " -> "))}
	}

	m.mu.RLock()
	b, ok := m.backends[name]
	cfg, defined := m.configs[name]
	m.mu.RUnlock()
	if ok {
		return b, nil
	}
	if !defined {
		return nil, &types.ConfigError{Option: "remote", Reason: fmt.Sprintf("unknown remote %q", name)}
	}

	// Built without holding the lock: factories resolve their own remotes.
	created, err := New(cfg, &chainResolver{m: m, chain: append(slices.Clone(chain), name)})
	if err != nil {
		return nil, fmt.Errorf("create remote %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.backends[name]; ok {
		created.Close()
		return existing, nil
	}
	m.backends[name] = created
	return created, nil
}

// chainResolver tracks the remotes being built so reference cycles are
// reported instead of recursing forever
type chainResolver struct {
	m     *Manager
	chain []string
}

func (c *chainResolver) Resolve(ref string) (types.Backend, error) {
	return c.m.resolve(ref, c.chain)
}

// Remove closes and removes a remote
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.backends[name]; ok {
		b.Close()
		delete(m.backends, name)
	}
	delete(m.configs, name)
	return nil
}

// List returns all remote names in sorted order
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes all backends
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.backends {
		b.Close()
	}
	m.backends = make(map[string]types.Backend)
	m.configs = make(map[string]types.BackendConfig)
	return nil
}
