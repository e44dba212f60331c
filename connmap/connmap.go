// Package connmap holds per-region connections that may still be dialing.
//
// An entry is either a resolved connection or a pending future. Reads always
// hand back a resolved connection: the first successful read of a pending entry
// waits for the dial-out and swaps the entry for its result, so each region is
// resolved at most once.
package connmap

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"mangrove/catalog"
	apperrors "mangrove/errors"
	"mangrove/executor"
)

type entry struct {
	conn    catalog.Conn
	pending *executor.Future[catalog.Conn]
}

// Map is a region-keyed connection map with an optional default alias.
// It is safe for concurrent use.
type Map struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      []string // Keys in insertion order
	defaultKey string
}

// New creates an empty map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Set stores a resolved connection for region.
func (m *Map) Set(region string, conn catalog.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(region, &entry{conn: conn})
}

// SetPending stores a dial-out that has not necessarily finished yet.
func (m *Map) SetPending(region string, f *executor.Future[catalog.Conn]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(region, &entry{pending: f})
}

func (m *Map) put(region string, e *entry) {
	if _, ok := m.entries[region]; !ok {
		m.order = append(m.order, region)
	}
	m.entries[region] = e
}

// Get returns the connection for region, waiting for a pending dial-out if
// needed. A region that was never stored fails with ErrNotConnected.
// A failed dial-out is returned as-is, now and on every later read.
func (m *Map) Get(region string) (catalog.Conn, error) {
	m.mu.Lock()
	e, ok := m.entries[region]
	m.mu.Unlock()
	if !ok {
		return nil, notConnected(region)
	}
	if e.pending == nil {
		return e.conn, nil
	}

	conn, err := e.pending.Wait()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Only swap if nobody replaced the entry while we were waiting.
	if cur, ok := m.entries[region]; ok && cur == e {
		m.entries[region] = &entry{conn: conn}
	}
	m.mu.Unlock()
	return conn, nil
}

// SetDefault aliases the default connection to region. An empty region clears
// the alias; any other value must already be a key.
func (m *Map) SetDefault(region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if region == "" {
		m.defaultKey = ""
		return nil
	}
	if _, ok := m.entries[region]; !ok {
		return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
			fmt.Sprintf("default region %q has no connection entry", region),
			map[string]string{"region": region})
	}
	m.defaultKey = region
	return nil
}

// DefaultName returns the aliased region, or "" when none is set.
func (m *Map) DefaultName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultKey
}

// Default returns the connection of the aliased region.
func (m *Map) Default() (catalog.Conn, error) {
	region := m.DefaultName()
	if region == "" {
		return nil, apperrors.New(apperrors.CodeNotConnected, "no default region set")
	}
	return m.Get(region)
}

// Has reports whether region has an entry, pending or resolved.
func (m *Map) Has(region string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[region]
	return ok
}

// Keys returns the regions in insertion order.
func (m *Map) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Drain moves every entry and the default alias into a new map and leaves m
// empty. It never waits for pending dial-outs.
func (m *Map) Drain() *Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Map{
		entries:    m.entries,
		order:      m.order,
		defaultKey: m.defaultKey,
	}
	m.entries = make(map[string]*entry)
	m.order = nil
	m.defaultKey = ""
	return out
}

// Replace swaps in the entries and default alias of next in one step and
// returns a map holding the previous ones. Readers see either the old entries
// or the new ones, never an empty map. next must not be used afterwards.
func (m *Map) Replace(next *Map) *Map {
	next.mu.Lock()
	entries, order, defaultKey := next.entries, next.order, next.defaultKey
	next.entries, next.order, next.defaultKey = make(map[string]*entry), nil, ""
	next.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Map{
		entries:    m.entries,
		order:      m.order,
		defaultKey: m.defaultKey,
	}
	m.entries, m.order, m.defaultKey = entries, order, defaultKey
	return out
}

// Close waits for pending dial-outs, closes every connection and empties the
// map. Failed dial-outs are not reported again; close errors are combined.
func (m *Map) Close() error {
	drained := m.Drain()

	var err error
	for _, region := range drained.order {
		e := drained.entries[region]
		conn := e.conn
		if e.pending != nil {
			var dialErr error
			conn, dialErr = e.pending.Wait()
			if dialErr != nil {
				continue
			}
		}
		if conn != nil {
			err = multierr.Append(err, conn.Close())
		}
	}
	return err
}

func notConnected(region string) error {
	return apperrors.WithMetadata(apperrors.CodeNotConnected,
		fmt.Sprintf("region %q is not connected; call Connect first", region),
		map[string]string{"region": region})
}
