package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

const peopleSchema = `{
	"fields": [
		{"name": "name", "type": "string", "constraints": {"required": true}},
		{"name": "age", "type": "integer"},
		{"name": "email", "constraints": {"pattern": "[^@]+@[^@]+"}}
	]
}`

const shopSchema = `{
	"tables": [
		{"url": "shoes.csv", "tableSchema": {"columns": [
			{"name": "brand", "datatype": "string", "required": true},
			{"name": "size", "datatype": {"base": "integer", "minimum": 1, "maximum": 60}}
		]}},
		{"url": "hats.csv", "tableSchema": {"columns": [
			{"name": "style", "datatype": "string", "required": true}
		]}}
	]
}`

func mustSchema(t *testing.T, doc string) *tableschema.Schema {
	t.Helper()
	s, err := tableschema.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestValidateWithoutSchema(t *testing.T) {
	v := New()
	res := v.Validate("hot-drinks.csv", []byte("name,temperature\ntea,hot\ncoffee,hotter\n"), nil)
	require.True(t, res.OK)
	require.Empty(t, res.Messages)
}

func TestValidateRejectsNonCSV(t *testing.T) {
	v := New()
	res := v.Validate("example.csv", []byte(`{"fields": [{"name": "id"}]}`), nil)
	require.False(t, res.OK)
	require.Equal(t, []string{MsgNotValidCSV}, res.Messages)
}

func TestValidateRejectsRaggedRows(t *testing.T) {
	v := New()
	res := v.Validate("example.csv", []byte("a,b,c\n1,2\n"), nil)
	require.False(t, res.OK)
	require.Equal(t, []string{MsgNotValidCSV}, res.Messages)
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	v := New()
	res := v.Validate("example.csv", nil, nil)
	require.False(t, res.OK)
	require.Equal(t, []string{MsgNotValidCSV}, res.Messages)
}

func TestValidateSingleTableGoodData(t *testing.T) {
	v := New()
	s := mustSchema(t, peopleSchema)
	res := v.Validate("people.csv", []byte("name,age,email\nAlice,30,alice@example.org\nBob,25,bob@example.org\n"), s)
	require.True(t, res.OK, "messages: %v", res.Messages)
}

func TestValidateSingleTableRequiredViolation(t *testing.T) {
	v := New()
	s := mustSchema(t, peopleSchema)
	res := v.Validate("people.csv", []byte("name,age,email\nAlice,30,alice@example.org\n,25,bob@example.org\n"), s)
	require.False(t, res.OK)
	require.Equal(t, []string{"row 3: column 'name' is required"}, res.Messages)
}

func TestValidateSingleTableTypeViolation(t *testing.T) {
	v := New()
	s := mustSchema(t, peopleSchema)
	res := v.Validate("people.csv", []byte("name,age,email\nAlice,young,alice@example.org\n"), s)
	require.False(t, res.OK)
	require.Equal(t, []string{"row 2: column 'age' must be an integer"}, res.Messages)
}

func TestValidateSingleTablePatternViolation(t *testing.T) {
	v := New()
	s := mustSchema(t, peopleSchema)
	res := v.Validate("people.csv", []byte("name,age,email\nAlice,30,not-an-email\n"), s)
	require.False(t, res.OK)
	require.Len(t, res.Messages, 1)
	require.Contains(t, res.Messages[0], "does not match the pattern")
}

func TestValidateSingleTableMissingRequiredColumn(t *testing.T) {
	v := New()
	s := mustSchema(t, peopleSchema)
	res := v.Validate("people.csv", []byte("age,email\n30,alice@example.org\n"), s)
	require.False(t, res.OK)
	require.Equal(t, []string{"is missing the required column 'name'"}, res.Messages)
}

func TestValidateTableGroupMatchingFile(t *testing.T) {
	v := New()
	s := mustSchema(t, shopSchema)

	good := v.Validate("shoes.csv", []byte("brand,size\nClarks,42\n"), s)
	require.True(t, good.OK, "messages: %v", good.Messages)

	bad := v.Validate("shoes.csv", []byte("brand,size\nClarks,900\n"), s)
	require.False(t, bad.OK)
	require.Equal(t, []string{"row 2: column 'size' must be at most 60"}, bad.Messages)
}

func TestValidateTableGroupUnmatchedFileIsValid(t *testing.T) {
	v := New()
	s := mustSchema(t, shopSchema)

	// no sub-schema named gloves.csv: the file validates by default
	res := v.Validate("gloves.csv", []byte("anything,goes\n1,2\n"), s)
	require.True(t, res.OK)
}

func TestValidateTableGroupInvalidHats(t *testing.T) {
	v := New()
	s := mustSchema(t, shopSchema)
	res := v.Validate("hats.csv", []byte("style\nfedora\n\"\"\n"), s)
	require.False(t, res.OK)
	require.Equal(t, []string{"row 3: column 'style' is required"}, res.Messages)
}
