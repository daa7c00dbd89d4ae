// Package client composes independent capability providers into one logical
// chain client with a single dispatch surface. Providers register the method
// names they implement; the client resolves a method to the provider that
// last registered it and forwards the call.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/7flash/chainabstractionlayer/pkg/logging"
)

// Common errors.
var (
	// ErrMethodNotImplemented is returned when no registered provider
	// implements the requested method.
	ErrMethodNotImplemented = errors.New("method not implemented by any provider")

	// ErrClientSealed is returned when AddProvider is called after the
	// first method resolution.
	ErrClientSealed = errors.New("client sealed: providers must be added before use")
)

// Handler is the generic form of a provider method, used by Invoke for
// dynamic forwarding. Typed callers should prefer the capability interfaces.
type Handler func(ctx context.Context, args ...interface{}) (interface{}, error)

// Provider is a pluggable capability backend. A provider declares the method
// names it implements and receives a back-reference to the client so it can
// call sibling capabilities (for example, the swap provider asking the query
// provider for UTXOs).
type Provider interface {
	// Methods returns the method names this provider implements, each with
	// a generic handler for dynamic dispatch.
	Methods() map[string]Handler

	// Bind gives the provider a back-reference to the owning client.
	// Called exactly once, from AddProvider.
	Bind(c *Client)
}

// Client is the composed chain client. The provider list is written only
// during setup (AddProvider) and becomes read-only once the first method is
// resolved.
type Client struct {
	mu        sync.RWMutex
	providers []Provider
	dispatch  map[string]Provider
	sealed    bool

	logger *logging.Logger
}

// New creates an empty client. Providers must be added before any method is
// invoked.
func New() *Client {
	return &Client{
		dispatch: make(map[string]Provider),
		logger:   logging.GetDefault().Component("client"),
	}
}

// AddProvider appends a provider and registers its methods in the dispatch
// table. When two providers implement the same method the one registered
// last wins. Must only be called during setup; returns ErrClientSealed once
// any method has been resolved.
func (c *Client) AddProvider(p Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrClientSealed
	}

	c.providers = append(c.providers, p)
	for name := range p.Methods() {
		c.dispatch[name] = p
	}
	p.Bind(c)

	c.logger.Debug("provider registered", "methods", len(p.Methods()))
	return nil
}

// Resolve returns the provider implementing method, sealing the provider
// list on first use.
func (c *Client) Resolve(method string) (Provider, error) {
	c.mu.Lock()
	c.sealed = true
	p, ok := c.dispatch[method]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotImplemented, method)
	}
	return p, nil
}

// ResolveFrom returns the provider implementing method, excluding caller.
// Providers use this to reach a capability implemented by an earlier
// provider without resolving back to themselves, which would recurse.
func (c *Client) ResolveFrom(method string, caller Provider) (Provider, error) {
	c.mu.Lock()
	c.sealed = true
	p, ok := c.dispatch[method]
	if ok && p == caller {
		// Walk the list backwards for the next-most-recent registrant.
		p = nil
		for i := len(c.providers) - 1; i >= 0; i-- {
			cand := c.providers[i]
			if cand == caller {
				continue
			}
			if _, has := cand.Methods()[method]; has {
				p = cand
				break
			}
		}
		ok = p != nil
	}
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotImplemented, method)
	}
	return p, nil
}

// Invoke forwards a method call to the provider that implements it. The
// return value and error are whatever the underlying handler produces.
func (c *Client) Invoke(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	p, err := c.Resolve(method)
	if err != nil {
		return nil, err
	}
	h := p.Methods()[method]
	return h(ctx, args...)
}

// Validate checks that every required method resolves to a provider.
// Call after setup so a misconfigured client fails immediately rather than
// at first use.
func (c *Client) Validate(required ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	for _, m := range required {
		if _, ok := c.dispatch[m]; !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMethodNotImplemented, missing)
	}
	return nil
}

// Providers returns the registered providers in registration order.
func (c *Client) Providers() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}
