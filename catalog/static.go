package catalog

import (
	"context"
	"strings"
	"sync"
)

// Static is an in-memory catalog. Region order is the order in which endpoints
// were added for a service.
type Static struct {
	mu       sync.RWMutex
	dialer   Dialer
	services map[string][]Endpoint
}

// NewStatic creates an empty in-memory catalog that dials through dialer.
func NewStatic(dialer Dialer) *Static {
	return &Static{
		dialer:   dialer,
		services: make(map[string][]Endpoint),
	}
}

// Add declares regions for a service. Endpoints for a region that already exists
// replace the previous address and keep its position.
func (s *Static) Add(service string, eps ...Endpoint) {
	service = strings.TrimSpace(service)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.services[service]
	for _, ep := range eps {
		replaced := false
		for i := range current {
			if current[i].Region == ep.Region {
				current[i].Addr = ep.Addr
				replaced = true
				break
			}
		}
		if !replaced {
			ep.Order = len(current)
			current = append(current, ep)
		}
	}
	s.services[service] = current
}

// Lookup implements Catalog.
func (s *Static) Lookup(_ context.Context, name string) (Service, error) {
	s.mu.RLock()
	_, ok := s.services[name]
	s.mu.RUnlock()
	if !ok {
		return nil, unknownService(name)
	}

	return &endpointService{
		name:   name,
		dialer: s.dialer,
		refresh: func(context.Context) ([]Endpoint, error) {
			return s.endpoints(name), nil
		},
	}, nil
}

// endpoints returns a copy of the endpoints declared for a service.
func (s *Static) endpoints(name string) []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := make([]Endpoint, len(s.services[name]))
	copy(eps, s.services[name])
	return eps
}
