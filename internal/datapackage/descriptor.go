// Package datapackage derives the data-package descriptor and site
// configuration artifacts for a dataset.
package datapackage

import (
	"encoding/json"

	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

// DescriptorLicense is one license entry of the descriptor.
type DescriptorLicense struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Resource describes one tabular file of the data package.
type Resource struct {
	Name        string          `json:"name,omitempty"`
	Mediatype   string          `json:"mediatype,omitempty"`
	Description string          `json:"description,omitempty"`
	Path        string          `json:"path,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Descriptor is the persisted datapackage.json document. Absent optional
// fields are omitted from the serialized form, never emitted as null.
type Descriptor struct {
	Name        string              `json:"name"`
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Licenses    []DescriptorLicense `json:"licenses,omitempty"`
	Publishers  []dataset.Publisher `json:"publishers,omitempty"`
	Resources   []Resource          `json:"resources"`
}

// Build derives the descriptor from the dataset state. Pure: the only input
// beyond the dataset is its already-resolved schema. The single-table schema
// is embedded per resource; a table-group or absent schema embeds nothing.
func Build(ds *dataset.Dataset, schema *tableschema.Schema) Descriptor {
	d := Descriptor{
		Name:        dataset.Slugify(ds.Name),
		Title:       ds.Name,
		Description: ds.Description,
		Resources:   make([]Resource, 0, len(ds.Files)),
	}

	if ds.License != "" {
		l := LicenseDetails(ds.License)
		d.Licenses = []DescriptorLicense{{URL: l.URL, Title: l.Title}}
	}
	if ds.Publisher.Name != "" || ds.Publisher.URL != "" {
		d.Publishers = []dataset.Publisher{ds.Publisher}
	}

	var embedded json.RawMessage
	if schema != nil && schema.Dialect == tableschema.DialectSingleTable {
		embedded = schema.Raw
	}

	for _, f := range ds.Files {
		d.Resources = append(d.Resources, Resource{
			Name:        f.Title,
			Mediatype:   "text/csv",
			Description: f.Description,
			Path:        "data/" + f.Filename(),
			Schema:      embedded,
		})
	}
	return d
}

// JSON serializes the descriptor. Struct field order makes the output
// byte-stable for a given dataset state.
func (d Descriptor) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
