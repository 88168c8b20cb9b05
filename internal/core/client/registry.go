package client

import (
	"errors"
	"sync"
)

// Factory builds the client for an instance.
type Factory func(instance string) (*Client, error)

// Registry owns one client per instance and tracks the active one.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]*Client
	active  string
}

// NewRegistry returns a registry that builds clients with factory. A nil
// factory uses NewClient.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = func(instance string) (*Client, error) {
			return NewClient(instance), nil
		}
	}
	return &Registry{factory: factory, clients: make(map[string]*Client)}
}

// Get returns the client for instance, creating it on first use.
func (r *Registry) Get(instance string) (*Client, error) {
	key := registryKey(instance)
	if key == "" {
		return nil, errors.New("instance is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.factory(instance)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}

// Switch makes instance the active one. The previously active client's
// cache is cleared since its data does not apply to the new instance.
func (r *Registry) Switch(instance string) (*Client, error) {
	c, err := r.Get(instance)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	previous := r.clients[r.active]
	r.active = registryKey(instance)
	r.mu.Unlock()

	if previous != nil && previous != c {
		previous.ClearCache()
	}
	return c, nil
}

// Active returns the active client, or nil before the first Switch.
func (r *Registry) Active() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[r.active]
}

// Remove forgets the client for instance.
func (r *Registry) Remove(instance string) {
	key := registryKey(instance)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		c.ClearCache()
		delete(r.clients, key)
	}
	if r.active == key {
		r.active = ""
	}
}

func registryKey(instance string) string {
	host, _ := splitInstance(instance)
	return host
}
