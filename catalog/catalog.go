// Package catalog describes the remote-service capabilities consumed by the pools.
//
// A Catalog answers two questions for a service name: which regions exist, and how
// to open a connection to one of them. The pools never speak a wire protocol
// themselves; they only call Service.Regions and Service.Dial.
//
//	Catalog.Lookup("ec2") ──→ Service ──Regions()──→ [us-east-1 eu-west-1 ...]
//	                                  └──Dial(region, creds)──→ Conn
//
// Three adapters are provided: Static (in-memory table), EtcdCatalog (endpoints
// registered in etcd with TTL leases) and SQLCatalog (endpoints in a SQL table).
// Each of them delegates the actual connection to a Dialer.
package catalog

import (
	"context"
	"fmt"
	"sort"

	apperrors "mangrove/errors"
)

// Conn is an open connection to one region of a service.
type Conn interface {
	Close() error
}

// Credentials authenticate a dial-out. Empty fields are passed through as-is;
// Dialers decide whether anonymous access is acceptable.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// IsZero reports whether no credential field is set.
func (c Credentials) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// Endpoint is the address of one region of a service.
type Endpoint struct {
	Region string `json:"region"`
	Addr   string `json:"addr"`
	Order  int    `json:"order"` // Position in the canonical region order
}

// Catalog resolves service names.
type Catalog interface {
	// Lookup returns the service bound to name, or an error matching
	// apperrors.ErrUnknownService when the name is not recognized.
	Lookup(ctx context.Context, name string) (Service, error)
}

// Service exposes the regions of one named service and opens connections to them.
type Service interface {
	Name() string
	// Regions returns every known region name in the catalog's canonical order.
	Regions(ctx context.Context) ([]string, error)
	// Dial opens a connection to a single region.
	Dial(ctx context.Context, region string, creds Credentials) (Conn, error)
}

// Dialer opens a connection to an endpoint of a service.
type Dialer interface {
	Dial(ctx context.Context, service string, ep Endpoint, creds Credentials) (Conn, error)
}

// DialerFunc adapts a dial function to the Dialer interface.
type DialerFunc func(ctx context.Context, service string, ep Endpoint, creds Credentials) (Conn, error)

// Dial implements Dialer for DialerFunc.
func (fn DialerFunc) Dial(ctx context.Context, service string, ep Endpoint, creds Credentials) (Conn, error) {
	return fn(ctx, service, ep, creds)
}

// unknownService builds the error returned by every adapter for a missing name.
func unknownService(name string) error {
	return apperrors.WithMetadata(apperrors.CodeUnknownService,
		fmt.Sprintf("service %q is not known to the catalog", name),
		map[string]string{"service": name})
}

// regionNotDeclared builds the error returned when dialing a region the service lacks.
func regionNotDeclared(service, region string) error {
	return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
		fmt.Sprintf("region %q is not known for service %q", region, service),
		map[string]string{"service": service, "region": region})
}

// sortEndpoints puts endpoints in canonical order: Order ascending, then region name.
func sortEndpoints(eps []Endpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Order != eps[j].Order {
			return eps[i].Order < eps[j].Order
		}
		return eps[i].Region < eps[j].Region
	})
}

// endpointService is the Service shared by the adapters: a fixed endpoint list
// resolved at lookup time plus a refresh function for Regions.
type endpointService struct {
	name    string
	dialer  Dialer
	refresh func(ctx context.Context) ([]Endpoint, error)
}

func (s *endpointService) Name() string {
	return s.name
}

func (s *endpointService) Regions(ctx context.Context) ([]string, error) {
	eps, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	regions := make([]string, 0, len(eps))
	for _, ep := range eps {
		regions = append(regions, ep.Region)
	}
	return regions, nil
}

func (s *endpointService) Dial(ctx context.Context, region string, creds Credentials) (Conn, error) {
	eps, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	for _, ep := range eps {
		if ep.Region == region {
			return s.dialer.Dial(ctx, s.name, ep, creds)
		}
	}
	return nil, regionNotDeclared(s.name, region)
}
