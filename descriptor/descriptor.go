// Package descriptor resolves and validates which regions of a service to use.
//
// A Descriptor binds a service name to its catalog handle, holds an ordered
// region list and an optional default region. The default is always one of the
// regions: every setter that could break that rule fails instead.
package descriptor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"mangrove/catalog"
	apperrors "mangrove/errors"
)

// Wildcard selects every region the catalog knows for the service.
const Wildcard = "*"

// Spec is the structured form of a single service declaration.
type Spec struct {
	Regions       []string // nil means no regions declared
	DefaultRegion string
}

// Descriptor is owned by one goroutine; it is not safe for concurrent mutation.
type Descriptor struct {
	catalog       catalog.Catalog
	serviceName   string
	service       catalog.Service
	regions       []string
	defaultRegion string
}

// New returns an unbound descriptor backed by cat.
func New(cat catalog.Catalog) *Descriptor {
	return &Descriptor{catalog: cat}
}

// FromName binds name and selects all of its regions.
func FromName(ctx context.Context, cat catalog.Catalog, name string) (*Descriptor, error) {
	d := New(cat)
	if err := d.SetServiceName(ctx, name); err != nil {
		return nil, err
	}
	if err := d.SetAllRegions(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// FromBlock builds a descriptor from a block holding exactly one service.
func FromBlock(ctx context.Context, cat catalog.Catalog, block map[string]Spec) (*Descriptor, error) {
	if len(block) != 1 {
		return nil, apperrors.Newf(apperrors.CodeInvalidConfiguration,
			"service block must declare exactly one service, got %d", len(block))
	}

	var (
		name string
		spec Spec
	)
	for name, spec = range block {
	}

	d := New(cat)
	if err := d.SetServiceName(ctx, name); err != nil {
		return nil, err
	}
	if err := d.SetRegions(ctx, spec.Regions); err != nil {
		return nil, err
	}
	if err := d.SetDefaultRegion(spec.DefaultRegion); err != nil {
		return nil, err
	}
	return d, nil
}

// SetServiceName binds the descriptor to name. An unknown name leaves the
// previous binding untouched.
func (d *Descriptor) SetServiceName(ctx context.Context, name string) error {
	svc, err := d.catalog.Lookup(ctx, name)
	if err != nil {
		return err
	}
	d.serviceName = name
	d.service = svc
	return nil
}

// SetRegions replaces the region list.
//
// nil or empty clears it. A single "*" expands to the catalog's regions for the
// bound service. Anything else must be distinct, non-empty names, stored in the
// given order. The current default must survive the change.
func (d *Descriptor) SetRegions(ctx context.Context, regions []string) error {
	if len(regions) == 0 {
		if d.defaultRegion != "" {
			return d.defaultDropped()
		}
		d.regions = nil
		return nil
	}

	if slices.Contains(regions, Wildcard) {
		if len(regions) != 1 {
			return d.invalid("wildcard %q cannot be combined with other regions", Wildcard)
		}
		return d.SetAllRegions(ctx)
	}

	seen := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		if strings.TrimSpace(r) == "" {
			return d.invalid("region names must not be empty")
		}
		if _, dup := seen[r]; dup {
			return d.invalid("region %q is listed more than once", r)
		}
		seen[r] = struct{}{}
	}
	return d.replaceRegions(append([]string(nil), regions...))
}

// SetAllRegions selects every region the catalog reports right now. Each call
// queries the catalog again.
func (d *Descriptor) SetAllRegions(ctx context.Context) error {
	if d.service == nil {
		return d.invalid("wildcard regions need a service name first")
	}
	regions, err := d.service.Regions(ctx)
	if err != nil {
		return err
	}
	return d.replaceRegions(regions)
}

func (d *Descriptor) replaceRegions(regions []string) error {
	if d.defaultRegion != "" && !slices.Contains(regions, d.defaultRegion) {
		return d.defaultDropped()
	}
	d.regions = regions
	return nil
}

// SetDefaultRegion picks the default region. "" clears it; anything else must
// already be one of the regions.
func (d *Descriptor) SetDefaultRegion(region string) error {
	if region == "" {
		d.defaultRegion = ""
		return nil
	}
	if !d.HasRegion(region) {
		return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
			fmt.Sprintf("default region %q is not one of the regions of %q", region, d.serviceName),
			map[string]string{"service": d.serviceName, "region": region})
	}
	d.defaultRegion = region
	return nil
}

// AppendRegion adds region at the end of the list unless it is already there.
func (d *Descriptor) AppendRegion(region string) {
	if !d.HasRegion(region) {
		d.regions = append(d.regions, region)
	}
}

// ServiceName returns the bound service name, or "".
func (d *Descriptor) ServiceName() string {
	return d.serviceName
}

// Service returns the catalog handle of the bound service, or nil.
func (d *Descriptor) Service() catalog.Service {
	return d.service
}

// Regions returns a copy of the region list; nil when none are declared.
func (d *Descriptor) Regions() []string {
	if d.regions == nil {
		return nil
	}
	return append([]string(nil), d.regions...)
}

// DefaultRegion returns the default region, or "".
func (d *Descriptor) DefaultRegion() string {
	return d.defaultRegion
}

// HasRegion reports whether region is in the list.
func (d *Descriptor) HasRegion(region string) bool {
	return slices.Contains(d.regions, region)
}

func (d *Descriptor) invalid(format string, args ...any) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidConfiguration,
		fmt.Sprintf(format, args...),
		map[string]string{"service": d.serviceName})
}

func (d *Descriptor) defaultDropped() error {
	return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
		fmt.Sprintf("new regions of %q drop the default region %q", d.serviceName, d.defaultRegion),
		map[string]string{"service": d.serviceName, "region": d.defaultRegion})
}
