package datapackage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

func hotDrinks() *dataset.Dataset {
	return &dataset.Dataset{
		ID:          "ds-1",
		Name:        "Hot Drinks",
		Description: "Beverage data",
		License:     "cc-by",
		Publisher:   dataset.Publisher{Name: "ODI", URL: "https://theodi.org"},
		Frequency:   "Monthly",
		Owner:       "theodi",
		Files: []*dataset.File{
			{ID: "f1", Title: "Hot Drinks", Description: "Contents may be hot"},
		},
	}
}

func TestBuildDescriptorWithoutSchema(t *testing.T) {
	d := Build(hotDrinks(), nil)

	require.Equal(t, "hot-drinks", d.Name)
	require.Equal(t, "Hot Drinks", d.Title)
	require.Len(t, d.Licenses, 1)
	require.Equal(t, "https://creativecommons.org/licenses/by/4.0/", d.Licenses[0].URL)
	require.Len(t, d.Resources, 1)

	r := d.Resources[0]
	require.Equal(t, "Hot Drinks", r.Name)
	require.Equal(t, "text/csv", r.Mediatype)
	require.Equal(t, "data/hot-drinks.csv", r.Path)
	require.Nil(t, r.Schema, "no schema key without a dataset schema")
}

func TestBuildDescriptorEmbedsSingleTableSchema(t *testing.T) {
	schema, err := tableschema.Parse([]byte(`{"fields": [{"name": "drink"}]}`))
	require.NoError(t, err)

	d := Build(hotDrinks(), schema)
	require.JSONEq(t, `{"fields": [{"name": "drink"}]}`, string(d.Resources[0].Schema))
}

func TestBuildDescriptorOmitsTableGroupSchema(t *testing.T) {
	schema, err := tableschema.Parse([]byte(`{"tables": [{"url": "hot-drinks.csv", "tableSchema": {"columns": [{"name": "drink"}]}}]}`))
	require.NoError(t, err)

	d := Build(hotDrinks(), schema)
	require.Nil(t, d.Resources[0].Schema, "table-group schema must not be embedded")
}

func TestDescriptorJSONOmitsEmptyFields(t *testing.T) {
	ds := &dataset.Dataset{Name: "Bare", Owner: "theodi",
		Files: []*dataset.File{{ID: "f1", Title: "Bare Data"}}}

	data, err := Build(ds, nil).JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotContains(t, decoded, "licenses")
	require.NotContains(t, decoded, "publishers")
	require.NotContains(t, decoded, "description")

	res := decoded["resources"].([]any)[0].(map[string]any)
	require.NotContains(t, res, "schema")
	require.NotContains(t, res, "description")
}

func TestDescriptorIsDeterministic(t *testing.T) {
	ds := hotDrinks()
	first, err := Build(ds, nil).JSON()
	require.NoError(t, err)
	second, err := Build(ds, nil).JSON()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLicenseDetailsFallback(t *testing.T) {
	l := LicenseDetails("my-house-rules")
	require.Equal(t, "my-house-rules", l.Title)
	require.Empty(t, l.URL)
}

func TestSiteConfigRoundTrip(t *testing.T) {
	ds := hotDrinks()
	data, err := NewSiteConfig(ds).YAML()
	require.NoError(t, err)
	require.Contains(t, string(data), "data_dir: .")
	require.Contains(t, string(data), "update_frequency: Monthly")
	require.Contains(t, string(data), "permalink: pretty")
	require.NotContains(t, string(data), "certificate_url")

	ds.CertificateURL = "https://certificates.example.org/1"
	data, err = CertifiedSiteConfig(ds).YAML()
	require.NoError(t, err)
	require.Contains(t, string(data), "data_source: .")
	require.Contains(t, string(data), "certificate_url: https://certificates.example.org/1/badge.js")
	require.NotContains(t, string(data), "permalink")
}
