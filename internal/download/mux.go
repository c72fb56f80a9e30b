package download

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Mux routes transfers to a Manager by URL scheme.
type Mux struct {
	managers map[string]Manager

	mu     sync.Mutex
	routes map[string]Manager // transfer ID -> manager
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{
		managers: make(map[string]Manager),
		routes:   make(map[string]Manager),
	}
}

// Handle registers m for the given schemes.
func (x *Mux) Handle(m Manager, schemes ...string) {
	for _, s := range schemes {
		x.managers[strings.ToLower(s)] = m
	}
}

// Enqueue starts the transfer on the manager registered for the URL scheme.
func (x *Mux) Enqueue(ctx context.Context, req Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parsing download url: %w", err)
	}
	m, ok := x.managers[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("no downloader for scheme %q", u.Scheme)
	}

	id, err := m.Enqueue(ctx, req)
	if err != nil {
		return "", err
	}
	x.mu.Lock()
	x.routes[id] = m
	x.mu.Unlock()
	return id, nil
}

// Query returns the snapshot from the manager that owns id.
func (x *Mux) Query(id string) (Snapshot, bool) {
	x.mu.Lock()
	m, ok := x.routes[id]
	x.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return m.Query(id)
}

// Remove removes id from the manager that owns it.
func (x *Mux) Remove(id string) error {
	x.mu.Lock()
	m, ok := x.routes[id]
	delete(x.routes, id)
	x.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Remove(id)
}
