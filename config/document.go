// Package config loads the service declaration document and the process settings.
//
// The document maps service names to their region declaration:
//
//	ec2:
//	  regions: "*"              # or ["*"], or [us-east-1, eu-west-1]
//	  default_region: eu-west-1
//
// JSON documents are accepted too since they parse as YAML.
package config

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	apperrors "mangrove/errors"
)

// Wildcard selects every region the catalog knows for a service.
const Wildcard = "*"

// RegionKind records the shape "regions" had in the document.
type RegionKind int

const (
	RegionsAbsent RegionKind = iota
	RegionsString
	RegionsList
	RegionsInvalid
)

func (k RegionKind) String() string {
	switch k {
	case RegionsAbsent:
		return "absent"
	case RegionsString:
		return "string"
	case RegionsList:
		return "list"
	default:
		return "invalid"
	}
}

// RegionSpec is the raw "regions" value. It keeps the shape it was written in so
// validation can tell a bare wildcard, a plain string and a wrong type apart.
type RegionSpec struct {
	Kind  RegionKind
	Value string   // Set when Kind is RegionsString
	List  []string // Set when Kind is RegionsList
	Tag   string   // YAML tag of an invalid value, for error messages
}

// AllRegions declares the bare wildcard.
func AllRegions() RegionSpec {
	return RegionSpec{Kind: RegionsString, Value: Wildcard}
}

// RegionList declares an explicit list. A nil list declares nothing.
func RegionList(regions ...string) RegionSpec {
	if regions == nil {
		return RegionSpec{}
	}
	return RegionSpec{Kind: RegionsList, List: append([]string{}, regions...)}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RegionSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() != "!!str" {
			*r = RegionSpec{Kind: RegionsInvalid, Tag: node.ShortTag()}
			return nil
		}
		*r = RegionSpec{Kind: RegionsString, Value: node.Value}
	case yaml.SequenceNode:
		list := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.ShortTag() != "!!str" {
				*r = RegionSpec{Kind: RegionsInvalid, Tag: "list of " + item.ShortTag()}
				return nil
			}
			list = append(list, item.Value)
		}
		*r = RegionSpec{Kind: RegionsList, List: list}
	default:
		*r = RegionSpec{Kind: RegionsInvalid, Tag: node.ShortTag()}
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r RegionSpec) MarshalYAML() (any, error) {
	switch r.Kind {
	case RegionsString:
		return r.Value, nil
	case RegionsList:
		return r.List, nil
	default:
		return nil, nil
	}
}

// IsZero lets the yaml encoder omit absent regions.
func (r RegionSpec) IsZero() bool {
	return r.Kind == RegionsAbsent
}

// Regions returns the declaration in the form descriptors accept: nil when
// absent, ["*"] for the bare wildcard, the list otherwise.
func (r RegionSpec) Regions() []string {
	switch r.Kind {
	case RegionsString:
		return []string{r.Value}
	case RegionsList:
		return append([]string{}, r.List...)
	default:
		return nil
	}
}

// IsWildcard reports whether the declaration selects every catalog region.
func (r RegionSpec) IsWildcard() bool {
	switch r.Kind {
	case RegionsString:
		return r.Value == Wildcard
	case RegionsList:
		return len(r.List) == 1 && r.List[0] == Wildcard
	default:
		return false
	}
}

// ServiceConfig is the declaration of one service.
type ServiceConfig struct {
	Regions       RegionSpec `yaml:"regions,omitempty"`
	DefaultRegion string     `yaml:"default_region,omitempty"`
}

// Clone returns a deep copy.
func (sc ServiceConfig) Clone() ServiceConfig {
	sc.Regions.List = slices.Clone(sc.Regions.List)
	return sc
}

// Document maps service names to their declarations.
type Document map[string]ServiceConfig

// LoadDocument reads and parses the document at path.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseDocument(data)
}

// ParseDocument parses a YAML or JSON document. It does not validate it.
func ParseDocument(data []byte) (Document, error) {
	doc := Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidConfiguration, "parse config document", err)
	}
	return doc, nil
}

// Names returns the service names in sorted order.
func (d Document) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for name, sc := range d {
		out[name] = sc.Clone()
	}
	return out
}

// Validate checks every service declaration and combines all failures.
func (d Document) Validate() error {
	var err error
	for _, name := range d.Names() {
		err = multierr.Append(err, d[name].Validate(name))
	}
	return err
}

// Validate checks the declaration of service name.
func (sc ServiceConfig) Validate(name string) error {
	meta := map[string]string{"service": name}
	invalid := func(format string, args ...any) error {
		return apperrors.WithMetadata(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("service %q: ", name)+fmt.Sprintf(format, args...), meta)
	}

	r := sc.Regions
	switch r.Kind {
	case RegionsInvalid:
		return invalid("regions must be %q or a list of region names, got %s", Wildcard, r.Tag)
	case RegionsAbsent:
		if sc.DefaultRegion != "" {
			return invalid("default_region %q is set but no regions are declared", sc.DefaultRegion)
		}
		return nil
	case RegionsString:
		if r.Value != Wildcard {
			return invalid("regions given as the string %q; only %q is allowed", r.Value, Wildcard)
		}
		return nil
	}

	if len(r.List) == 0 {
		if sc.DefaultRegion != "" {
			return invalid("default_region %q is set but no regions are declared", sc.DefaultRegion)
		}
		return nil
	}
	if slices.Contains(r.List, Wildcard) {
		if len(r.List) != 1 {
			return invalid("wildcard %q cannot be combined with other regions", Wildcard)
		}
		return nil
	}
	seen := make(map[string]struct{}, len(r.List))
	for _, region := range r.List {
		if region == "" {
			return invalid("region names must not be empty")
		}
		if _, dup := seen[region]; dup {
			return invalid("region %q is listed more than once", region)
		}
		seen[region] = struct{}{}
	}
	if sc.DefaultRegion != "" && !slices.Contains(r.List, sc.DefaultRegion) {
		return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
			fmt.Sprintf("service %q: default_region %q is not one of the declared regions", name, sc.DefaultRegion),
			map[string]string{"service": name, "region": sc.DefaultRegion})
	}
	return nil
}
