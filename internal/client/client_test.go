package client

import (
	"context"
	"errors"
	"testing"
)

// stubProvider implements Provider with canned handlers.
type stubProvider struct {
	name    string
	methods map[string]Handler
	client  *Client
}

func (s *stubProvider) Methods() map[string]Handler { return s.methods }
func (s *stubProvider) Bind(c *Client)              { s.client = c }

func newStub(name string, methodNames ...string) *stubProvider {
	s := &stubProvider{name: name, methods: make(map[string]Handler)}
	for _, m := range methodNames {
		s.methods[m] = func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return name, nil
		}
	}
	return s
}

func TestResolveLastRegisteredWins(t *testing.T) {
	c := New()
	first := newStub("first", "op")
	second := newStub("second", "op")

	if err := c.AddProvider(first); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if err := c.AddProvider(second); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	got, err := c.Invoke(context.Background(), "op")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "second" {
		t.Errorf("expected last-registered provider to win, got %v", got)
	}
}

func TestResolveMethodNotImplemented(t *testing.T) {
	c := New()
	if err := c.AddProvider(newStub("only", "op")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	_, err := c.Invoke(context.Background(), "missing")
	if !errors.Is(err, ErrMethodNotImplemented) {
		t.Errorf("expected ErrMethodNotImplemented, got %v", err)
	}
}

func TestSealedAfterFirstResolve(t *testing.T) {
	c := New()
	if err := c.AddProvider(newStub("a", "op")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	if _, err := c.Resolve("op"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	err := c.AddProvider(newStub("late", "other"))
	if !errors.Is(err, ErrClientSealed) {
		t.Errorf("expected ErrClientSealed, got %v", err)
	}
}

func TestResolveFromSkipsCaller(t *testing.T) {
	c := New()
	base := newStub("base", "op")
	override := newStub("override", "op")

	if err := c.AddProvider(base); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if err := c.AddProvider(override); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	// The overriding provider asking for its own operation must reach the
	// earlier registrant, not itself.
	p, err := c.ResolveFrom("op", override)
	if err != nil {
		t.Fatalf("ResolveFrom: %v", err)
	}
	if p != Provider(base) {
		t.Errorf("expected base provider, got %v", p)
	}

	// With no other implementor, resolution fails instead of recursing.
	c2 := New()
	only := newStub("only", "op")
	if err := c2.AddProvider(only); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if _, err := c2.ResolveFrom("op", only); !errors.Is(err, ErrMethodNotImplemented) {
		t.Errorf("expected ErrMethodNotImplemented, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := New()
	if err := c.AddProvider(newStub("a", "op1", "op2")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	if err := c.Validate("op1", "op2"); err != nil {
		t.Errorf("Validate with present methods: %v", err)
	}
	if err := c.Validate("op1", "op3"); !errors.Is(err, ErrMethodNotImplemented) {
		t.Errorf("expected ErrMethodNotImplemented for missing method, got %v", err)
	}
}

func TestBindReceivesClient(t *testing.T) {
	c := New()
	s := newStub("a", "op")
	if err := c.AddProvider(s); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if s.client != c {
		t.Error("provider was not bound to the client")
	}
}

func TestInvokeForwardsArgs(t *testing.T) {
	c := New()
	s := &stubProvider{methods: map[string]Handler{
		"echo": func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return args, nil
		},
	}}
	if err := c.AddProvider(s); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	got, err := c.Invoke(context.Background(), "echo", "x", uint64(42))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	args := got.([]interface{})
	if len(args) != 2 || args[0] != "x" || args[1] != uint64(42) {
		t.Errorf("arguments not forwarded verbatim: %v", args)
	}
}

func TestHashSecret(t *testing.T) {
	secret := make([]byte, SecretSize)
	for i := range secret {
		secret[i] = byte(i)
	}
	h1 := HashSecret(secret)
	h2 := HashSecret(secret)
	if h1 != h2 {
		t.Error("HashSecret is not deterministic")
	}

	secret[0] ^= 1
	if HashSecret(secret) == h1 {
		t.Error("HashSecret ignored input change")
	}
}
