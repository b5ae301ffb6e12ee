// Package tableschema resolves and classifies tabular schema documents.
//
// Two dialects are supported: a flat single-table field list ("Table Schema")
// and a multi-resource CSV-on-the-Web table group naming one sub-schema per
// file. Classification happens once at resolution time and is carried as an
// explicit Dialect tag.
package tableschema

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Dialect tags the shape of a resolved schema.
type Dialect string

const (
	DialectSingleTable Dialect = "single-table"
	DialectTableGroup  Dialect = "table-group"
)

// Constraints restrict the values of a single field.
type Constraints struct {
	Required  bool   `json:"required,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
	MinLength int    `json:"minLength,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Minimum   string `json:"minimum,omitempty"`
	Maximum   string `json:"maximum,omitempty"`
}

// Field describes one column of a table.
type Field struct {
	Name        string       `json:"name"`
	Type        string       `json:"type,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Table is one named sub-schema of a table group, keyed by its resource URL.
type Table struct {
	URL    string
	Fields []Field
}

// Schema is a resolved, classified schema document.
type Schema struct {
	Dialect Dialect
	Fields  []Field           // populated for single-table
	Tables  map[string]*Table // populated for table-group, keyed by filename
	Raw     json.RawMessage   // original document, for descriptor embedding
}

// TableFor returns the sub-schema applicable to the given filename, matching
// on the final path segment of each table's URL. For single-table schemas the
// whole field list applies to every file. A nil return means no sub-schema
// applies.
func (s *Schema) TableFor(filename string) *Table {
	if s == nil {
		return nil
	}
	if s.Dialect == DialectSingleTable {
		return &Table{Fields: s.Fields}
	}
	if t, ok := s.Tables[filename]; ok {
		return t
	}
	return nil
}

// singleTableDoc is the wire shape of a Table Schema document.
type singleTableDoc struct {
	Fields []Field `json:"fields"`
}

// tableGroupDoc is the wire shape of a CSV-on-the-Web table group.
type tableGroupDoc struct {
	Tables []struct {
		URL         string `json:"url"`
		TableSchema struct {
			Columns []csvwColumn `json:"columns"`
		} `json:"tableSchema"`
	} `json:"tables"`
}

// csvwColumn maps a CSVW column onto the common Field shape. The datatype is
// either a bare string or an object with base plus numeric bounds.
type csvwColumn struct {
	Name     string          `json:"name"`
	Titles   json.RawMessage `json:"titles,omitempty"`
	Datatype json.RawMessage `json:"datatype,omitempty"`
	Required bool            `json:"required,omitempty"`
}

func (c csvwColumn) toField() Field {
	f := Field{Name: c.Name}
	if len(c.Datatype) > 0 {
		var base string
		if err := json.Unmarshal(c.Datatype, &base); err == nil {
			f.Type = base
		} else {
			var obj struct {
				Base    string          `json:"base"`
				Minimum json.RawMessage `json:"minimum,omitempty"`
				Maximum json.RawMessage `json:"maximum,omitempty"`
			}
			if err := json.Unmarshal(c.Datatype, &obj); err == nil {
				f.Type = obj.Base
				if len(obj.Minimum) > 0 || len(obj.Maximum) > 0 {
					f.Constraints = &Constraints{
						Minimum: strings.Trim(string(obj.Minimum), `"`),
						Maximum: strings.Trim(string(obj.Maximum), `"`),
					}
				}
			}
		}
	}
	if c.Required {
		if f.Constraints == nil {
			f.Constraints = &Constraints{}
		}
		f.Constraints.Required = true
	}
	return f
}

// Parse classifies and parses a schema document. A document with a "tables"
// key is a table group; one with a "fields" key is a single table. Anything
// else is a parse failure, and a classified document with zero fields or
// zero tables is malformed.
func Parse(doc []byte) (*Schema, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(doc, &probe); err != nil {
		return nil, &ResolutionError{Kind: KindParseFailure, Err: err}
	}

	if _, ok := probe["tables"]; ok {
		return parseTableGroup(doc)
	}
	if _, ok := probe["fields"]; ok {
		return parseSingleTable(doc)
	}
	return nil, &ResolutionError{Kind: KindParseFailure, Err: fmt.Errorf("document has neither fields nor tables")}
}

func parseSingleTable(doc []byte) (*Schema, error) {
	var st singleTableDoc
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, &ResolutionError{Kind: KindParseFailure, Err: err}
	}
	if len(st.Fields) == 0 {
		return nil, &ResolutionError{Kind: KindMalformed, Err: fmt.Errorf("schema has no fields")}
	}
	return &Schema{Dialect: DialectSingleTable, Fields: st.Fields, Raw: append(json.RawMessage(nil), doc...)}, nil
}

func parseTableGroup(doc []byte) (*Schema, error) {
	var tg tableGroupDoc
	if err := json.Unmarshal(doc, &tg); err != nil {
		return nil, &ResolutionError{Kind: KindParseFailure, Err: err}
	}
	if len(tg.Tables) == 0 {
		return nil, &ResolutionError{Kind: KindMalformed, Err: fmt.Errorf("schema has no tables")}
	}

	tables := make(map[string]*Table, len(tg.Tables))
	for _, t := range tg.Tables {
		fields := make([]Field, 0, len(t.TableSchema.Columns))
		for _, c := range t.TableSchema.Columns {
			fields = append(fields, c.toField())
		}
		key := path.Base(t.URL)
		tables[key] = &Table{URL: t.URL, Fields: fields}
	}

	// The first table must resolve at least one column, mirroring the
	// single-table zero-fields rule.
	empty := true
	for _, t := range tables {
		if len(t.Fields) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil, &ResolutionError{Kind: KindMalformed, Err: fmt.Errorf("schema tables have no columns")}
	}

	return &Schema{Dialect: DialectTableGroup, Tables: tables, Raw: append(json.RawMessage(nil), doc...)}, nil
}
