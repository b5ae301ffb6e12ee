// Package validate checks tabular file content for well-formedness and
// schema conformance.
package validate

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

// Stable user-facing error taxonomy, independent of the underlying parser's
// error types. The two kinds are distinct and never merged.
const (
	MsgNotValidCSV   = "does not appear to be a valid CSV. Please check your file and try again."
	MsgUploadProblem = "had some problems trying to upload. Please check your file and try again."
)

// Result is the outcome of validating one file.
type Result struct {
	Filename string
	OK       bool
	Messages []string
}

// Success returns a passing result for the file.
func Success(filename string) Result {
	return Result{Filename: filename, OK: true}
}

// Failure returns a failing result with the given messages.
func Failure(filename string, messages ...string) Result {
	return Result{Filename: filename, OK: false, Messages: messages}
}

// Validator validates tabular files, optionally against a resolved schema.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate parses the file content and, when a schema is supplied, checks
// rows and columns against the applicable field definitions. For a
// table-group schema whose tables name no match for this filename, the file
// is valid by default (no-schema-applies policy).
func (v *Validator) Validate(filename string, content []byte, schema *tableschema.Schema) (result Result) {
	// Whatever the parser throws, the user sees the stable taxonomy.
	defer func() {
		if r := recover(); r != nil {
			result = Failure(filename, MsgUploadProblem)
		}
	}()

	records, err := parseCSV(content)
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Failure(filename, MsgNotValidCSV)
		}
		return Failure(filename, MsgUploadProblem)
	}
	if len(records) == 0 {
		return Failure(filename, MsgNotValidCSV)
	}

	table := schema.TableFor(filename)
	if table == nil {
		return Success(filename)
	}
	if msg := validateAgainstTable(records, table); msg != "" {
		return Failure(filename, msg)
	}
	return Success(filename)
}

func parseCSV(content []byte) ([][]string, error) {
	// A JSON document pasted in place of a CSV can slip through a lenient
	// reader as one-column rows; treat it as the distinct "not a valid CSV"
	// kind rather than the generic upload problem.
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return nil, &csv.ParseError{Err: csv.ErrFieldCount}
	}

	r := csv.NewReader(bytes.NewReader(content))
	// FieldsPerRecord defaults to the first row's width, enforcing a
	// consistent structure across the file.
	return r.ReadAll()
}

// validateAgainstTable checks header presence for required fields and each
// row's cells against field definitions. The first failing cell is reported.
func validateAgainstTable(records [][]string, table *tableschema.Table) string {
	header := records[0]
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(name)] = i
	}

	for _, f := range table.Fields {
		if _, ok := colIndex[f.Name]; !ok {
			if f.Constraints != nil && f.Constraints.Required {
				return fmt.Sprintf("is missing the required column '%s'", f.Name)
			}
		}
	}

	for rowNum, row := range records[1:] {
		for _, f := range table.Fields {
			idx, ok := colIndex[f.Name]
			if !ok || idx >= len(row) {
				continue
			}
			if msg := checkCell(row[idx], f); msg != "" {
				// rows are 1-based and the header is row 1
				return fmt.Sprintf("row %d: column '%s' %s", rowNum+2, f.Name, msg)
			}
		}
	}
	return ""
}

func checkCell(value string, f tableschema.Field) string {
	value = strings.TrimSpace(value)
	c := f.Constraints

	if value == "" {
		if c != nil && c.Required {
			return "is required"
		}
		return ""
	}

	if msg := checkType(value, f.Type); msg != "" {
		return msg
	}
	if c == nil {
		return ""
	}
	if c.MinLength > 0 && len(value) < c.MinLength {
		return fmt.Sprintf("must be at least %d characters", c.MinLength)
	}
	if c.MaxLength > 0 && len(value) > c.MaxLength {
		return fmt.Sprintf("must be at most %d characters", c.MaxLength)
	}
	if c.Pattern != "" {
		re, err := regexp.Compile("^(?:" + c.Pattern + ")$")
		if err == nil && !re.MatchString(value) {
			return fmt.Sprintf("does not match the pattern '%s'", c.Pattern)
		}
	}
	if c.Minimum != "" || c.Maximum != "" {
		if msg := checkBounds(value, c.Minimum, c.Maximum); msg != "" {
			return msg
		}
	}
	return ""
}

func checkType(value, fieldType string) string {
	switch fieldType {
	case "", "string", "any":
		return ""
	case "integer", "int":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return "must be an integer"
		}
	case "number", "decimal", "double", "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "must be a number"
		}
	case "boolean":
		switch strings.ToLower(value) {
		case "true", "false", "0", "1", "yes", "no":
		default:
			return "must be a boolean"
		}
	case "date":
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case "datetime":
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return "must be a datetime (RFC 3339)"
		}
	default:
		// Unknown declared types pass through rather than failing data
		// that a stricter dialect implementation might accept.
	}
	return ""
}

func checkBounds(value, minimum, maximum string) string {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return ""
	}
	if minimum != "" {
		if m, err := strconv.ParseFloat(minimum, 64); err == nil && n < m {
			return fmt.Sprintf("must be at least %s", minimum)
		}
	}
	if maximum != "" {
		if m, err := strconv.ParseFloat(maximum, 64); err == nil && n > m {
			return fmt.Sprintf("must be at most %s", maximum)
		}
	}
	return ""
}
