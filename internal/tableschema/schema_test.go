package tableschema

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const goodSingleTable = `{
	"fields": [
		{"name": "id", "type": "integer", "constraints": {"required": true}},
		{"name": "name", "type": "string"}
	]
}`

const goodTableGroup = `{
	"@context": "http://www.w3.org/ns/csvw",
	"tables": [
		{"url": "shoes.csv", "tableSchema": {"columns": [
			{"name": "brand", "datatype": "string", "required": true},
			{"name": "size", "datatype": {"base": "integer", "minimum": 1, "maximum": 60}}
		]}},
		{"url": "http://example.org/hats.csv", "tableSchema": {"columns": [
			{"name": "style", "datatype": "string", "required": true}
		]}}
	]
}`

func TestParseSingleTable(t *testing.T) {
	s, err := Parse([]byte(goodSingleTable))
	require.NoError(t, err)
	require.Equal(t, DialectSingleTable, s.Dialect)
	require.Len(t, s.Fields, 2)
	require.True(t, s.Fields[0].Constraints.Required)
	require.Equal(t, "integer", s.Fields[0].Type)
}

func TestParseTableGroup(t *testing.T) {
	s, err := Parse([]byte(goodTableGroup))
	require.NoError(t, err)
	require.Equal(t, DialectTableGroup, s.Dialect)
	require.Len(t, s.Tables, 2)

	shoes := s.Tables["shoes.csv"]
	require.NotNil(t, shoes)
	require.Equal(t, "integer", shoes.Fields[1].Type)
	require.Equal(t, "1", shoes.Fields[1].Constraints.Minimum)
	require.Equal(t, "60", shoes.Fields[1].Constraints.Maximum)

	// table keyed by the final path segment of its url
	require.NotNil(t, s.Tables["hats.csv"])
}

func TestTableForMatchesByFilename(t *testing.T) {
	s, err := Parse([]byte(goodTableGroup))
	require.NoError(t, err)

	require.NotNil(t, s.TableFor("shoes.csv"))
	require.NotNil(t, s.TableFor("hats.csv"))
	require.Nil(t, s.TableFor("gloves.csv"), "unmatched file must get no sub-schema")
}

func TestTableForSingleTableAppliesToEveryFile(t *testing.T) {
	s, err := Parse([]byte(goodSingleTable))
	require.NoError(t, err)
	tb := s.TableFor("anything.csv")
	require.NotNil(t, tb)
	require.Len(t, tb.Fields, 2)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"fields": []}`))
	require.True(t, IsMalformed(err), "zero fields must be malformed, got %v", err)

	_, err = Parse([]byte(`{"tables": []}`))
	require.True(t, IsMalformed(err), "zero tables must be malformed, got %v", err)
}

func TestParseFailure(t *testing.T) {
	_, err := Parse([]byte(`not json at all`))
	require.True(t, IsParseFailure(err))

	_, err = Parse([]byte(`{"title": "no schema keys"}`))
	require.True(t, IsParseFailure(err))
}

func TestResolverCachesByReference(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(goodSingleTable))
	}))
	defer srv.Close()

	r := NewResolver()
	first, err := r.Resolve(t.Context(), srv.URL)
	require.NoError(t, err)
	second, err := r.Resolve(t.Context(), srv.URL)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, hits.Load(), "second resolve must hit the cache")
}

func TestResolverUnreachable(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(t.Context(), "http://127.0.0.1:1/schema.json")
	require.True(t, IsUnreachable(err), "expected unreachable, got %v", err)
}

func TestResolverBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver()
	_, err := r.Resolve(t.Context(), srv.URL)
	require.True(t, IsUnreachable(err))
}

func TestResolveInline(t *testing.T) {
	r := NewResolver()
	s, err := r.ResolveInline("schema-1", []byte(goodTableGroup))
	require.NoError(t, err)
	require.Equal(t, DialectTableGroup, s.Dialect)

	again, err := r.ResolveInline("schema-1", []byte(`garbage`))
	require.NoError(t, err, "cached identity must not re-parse")
	require.Same(t, s, again)
}
