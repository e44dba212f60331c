package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apperrors "mangrove/errors"
)

func TestParseDocumentShapes(t *testing.T) {
	doc, err := ParseDocument([]byte(`
bare:
  regions: "*"
listed:
  regions: ["*"]
explicit:
  regions: [us-east-1, eu-west-1]
  default_region: eu-west-1
plain:
  regions: us-east-1
numeric:
  regions: 42
mixed:
  regions: [us-east-1, 7]
nothing: {}
`))
	require.NoError(t, err)

	assert.Equal(t, RegionsString, doc["bare"].Regions.Kind)
	assert.True(t, doc["bare"].Regions.IsWildcard())
	assert.Equal(t, []string{"*"}, doc["bare"].Regions.Regions())

	assert.Equal(t, RegionsList, doc["listed"].Regions.Kind)
	assert.True(t, doc["listed"].Regions.IsWildcard())

	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, doc["explicit"].Regions.Regions())
	assert.Equal(t, "eu-west-1", doc["explicit"].DefaultRegion)

	assert.Equal(t, RegionsString, doc["plain"].Regions.Kind)
	assert.False(t, doc["plain"].Regions.IsWildcard())

	assert.Equal(t, RegionsInvalid, doc["numeric"].Regions.Kind)
	assert.Equal(t, RegionsInvalid, doc["mixed"].Regions.Kind)

	assert.Equal(t, RegionsAbsent, doc["nothing"].Regions.Kind)
	assert.Nil(t, doc["nothing"].Regions.Regions())
}

func TestParseDocumentJSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"x": {"regions": ["*"], "default_region": "eu-west-1"}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, doc.Names())
	assert.True(t, doc["x"].Regions.IsWildcard())
	assert.NoError(t, doc.Validate())
}

func TestParseDocumentSyntaxError(t *testing.T) {
	_, err := ParseDocument([]byte("x: [unterminated"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ec2:\n  regions: \"*\"\n"), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.True(t, doc["ec2"].Regions.IsWildcard())

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		sc   ServiceConfig
		code apperrors.Code
	}{
		{name: "absent", sc: ServiceConfig{}},
		{name: "bare wildcard", sc: ServiceConfig{Regions: AllRegions(), DefaultRegion: "eu-west-1"}},
		{name: "listed wildcard", sc: ServiceConfig{Regions: RegionList("*")}},
		{name: "explicit with default", sc: ServiceConfig{Regions: RegionList("us-east-1", "eu-west-1"), DefaultRegion: "us-east-1"}},
		{name: "empty list", sc: ServiceConfig{Regions: RegionList()}},
		{name: "default without regions", sc: ServiceConfig{DefaultRegion: "us-east-1"}, code: apperrors.CodeInvalidConfiguration},
		{name: "default with empty list", sc: ServiceConfig{Regions: RegionList(), DefaultRegion: "us-east-1"}, code: apperrors.CodeInvalidConfiguration},
		{name: "non-wildcard string", sc: ServiceConfig{Regions: RegionSpec{Kind: RegionsString, Value: "us-east-1"}}, code: apperrors.CodeInvalidConfiguration},
		{name: "wrong type", sc: ServiceConfig{Regions: RegionSpec{Kind: RegionsInvalid, Tag: "!!int"}}, code: apperrors.CodeInvalidConfiguration},
		{name: "wildcard mixed", sc: ServiceConfig{Regions: RegionList("*", "us-east-1")}, code: apperrors.CodeInvalidConfiguration},
		{name: "duplicate", sc: ServiceConfig{Regions: RegionList("us-east-1", "us-east-1")}, code: apperrors.CodeInvalidConfiguration},
		{name: "default not listed", sc: ServiceConfig{Regions: RegionList("us-east-1"), DefaultRegion: "eu-west-1"}, code: apperrors.CodeRegionNotDeclared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sc.Validate("ec2")
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Contains(t, err.Error(), `"ec2"`)
		})
	}
}

func TestDocumentValidateCombinesFailures(t *testing.T) {
	doc := Document{
		"good":    {Regions: AllRegions()},
		"nodecl":  {DefaultRegion: "us-east-1"},
		"unknown": {Regions: RegionList("us-east-1"), DefaultRegion: "eu-west-1"},
	}

	err := doc.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
	assert.True(t, errors.Is(err, apperrors.ErrRegionNotDeclared))
	assert.Contains(t, err.Error(), "nodecl")
	assert.Contains(t, err.Error(), "unknown")
}

func TestDocumentCloneIsDeep(t *testing.T) {
	doc := Document{"ec2": {Regions: RegionList("us-east-1")}}

	clone := doc.Clone()
	clone["ec2"].Regions.List[0] = "mutated"
	clone["s3"] = ServiceConfig{}

	assert.Equal(t, []string{"us-east-1"}, doc["ec2"].Regions.List)
	assert.NotContains(t, doc, "s3")
}

func TestRegionSpecMarshalRoundTrip(t *testing.T) {
	doc := Document{
		"ec2": {Regions: AllRegions(), DefaultRegion: "eu-west-1"},
		"s3":  {Regions: RegionList("us-east-1")},
		"sns": {},
	}

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)

	back, err := ParseDocument(out)
	require.NoError(t, err)
	assert.Equal(t, doc["ec2"].Regions.Regions(), back["ec2"].Regions.Regions())
	assert.Equal(t, "eu-west-1", back["ec2"].DefaultRegion)
	assert.Equal(t, []string{"us-east-1"}, back["s3"].Regions.Regions())
	assert.Equal(t, RegionsAbsent, back["sns"].Regions.Kind)
}
