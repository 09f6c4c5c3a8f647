package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrNoRoute is returned for a request whose engine has no transport.
var ErrNoRoute = errors.New("transport: no transport for engine")

// Mux routes requests by engine. Routes are fixed before the first Send.
type Mux struct {
	routes map[string]orchestrator.Transport
}

var _ orchestrator.Transport = (*Mux)(nil)

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{routes: map[string]orchestrator.Transport{}}
}

// Handle routes engine to t, replacing any previous route.
func (m *Mux) Handle(engine string, t orchestrator.Transport) {
	m.routes[engine] = t
}

// Engines returns the routed engine names, sorted.
func (m *Mux) Engines() []string {
	names := make([]string, 0, len(m.routes))
	for name := range m.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send forwards req to the transport of req.Engine.
func (m *Mux) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	t, ok := m.routes[req.Engine]
	if !ok {
		return plan.Response{}, fmt.Errorf("%w %q", ErrNoRoute, req.Engine)
	}
	return t.Send(ctx, req)
}

// Close closes every routed transport that holds resources. A transport
// routed under several engines is closed once.
func (m *Mux) Close() error {
	seen := map[io.Closer]bool{}
	var errs []error
	for _, name := range m.Engines() {
		c, ok := m.routes[name].(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s transport: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
