// Package catalogtest provides a counting in-memory catalog for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mangrove/catalog"
	apperrors "mangrove/errors"
)

// Conn is the connection handed out by Fake.
type Conn struct {
	Service     string
	Region      string
	ID          int64
	Credentials catalog.Credentials
	closed      atomic.Bool
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Fake is a catalog.Catalog that records every call. Dial-outs can be slowed
// down, held until released, or made to fail per region.
type Fake struct {
	mu            sync.Mutex
	services      map[string][]string
	failures      map[string]error
	dials         map[string]int
	latency       time.Duration
	gate          chan struct{}
	regionQueries int
	nextID        atomic.Int64
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		services: make(map[string][]string),
		failures: make(map[string]error),
		dials:    make(map[string]int),
	}
}

// AddService declares a service and its regions in canonical order.
func (f *Fake) AddService(name string, regions ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[name] = append([]string(nil), regions...)
	return f
}

// FailRegion makes every dial-out to service/region return err.
func (f *Fake) FailRegion(service, region string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key(service, region)] = err
}

// SetLatency delays every dial-out by d.
func (f *Fake) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Hold blocks every dial-out started afterwards until the returned function is called.
func (f *Fake) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Dials returns how many dial-outs were started for service/region.
func (f *Fake) Dials(service, region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[key(service, region)]
}

// TotalDials returns how many dial-outs were started overall.
func (f *Fake) TotalDials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.dials {
		total += n
	}
	return total
}

// RegionQueries returns how many times a service's region list was requested.
func (f *Fake) RegionQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regionQueries
}

// Lookup implements catalog.Catalog.
func (f *Fake) Lookup(_ context.Context, name string) (catalog.Service, error) {
	f.mu.Lock()
	_, ok := f.services[name]
	f.mu.Unlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnknownService, "service %q is not known to the catalog", name)
	}
	return &service{fake: f, name: name}, nil
}

type service struct {
	fake *Fake
	name string
}

func (s *service) Name() string {
	return s.name
}

func (s *service) Regions(context.Context) ([]string, error) {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regionQueries++
	return append([]string(nil), f.services[s.name]...), nil
}

func (s *service) Dial(ctx context.Context, region string, creds catalog.Credentials) (catalog.Conn, error) {
	f := s.fake
	f.mu.Lock()
	f.dials[key(s.name, region)]++
	latency, gate, failure := f.latency, f.gate, f.failures[key(s.name, region)]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}

	return &Conn{
		Service:     s.name,
		Region:      region,
		ID:          f.nextID.Add(1),
		Credentials: creds,
	}, nil
}

func key(service, region string) string {
	return fmt.Sprintf("%s/%s", service, region)
}
