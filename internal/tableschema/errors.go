package tableschema

import "fmt"

// ErrorKind distinguishes the expected schema resolution failure modes.
type ErrorKind string

const (
	// KindUnreachable: the schema document could not be fetched. Benign for
	// auto-discovered schemas (treated as "no schema"), fatal otherwise.
	KindUnreachable ErrorKind = "unreachable"

	// KindMalformed: the document parsed but carries zero fields or tables.
	// Surfaced as a dataset validation error.
	KindMalformed ErrorKind = "malformed"

	// KindParseFailure: the document is not valid schema syntax. Fatal for
	// explicit schemas, ignored for auto-discovery.
	KindParseFailure ErrorKind = "parse-failure"
)

// ResolutionError reports why a schema reference could not be resolved.
type ResolutionError struct {
	Kind ErrorKind
	Ref  string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("schema %s: %s: %v", e.Ref, e.Kind, e.Err)
	}
	return fmt.Sprintf("schema %s: %v", e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func kindOf(err error) ErrorKind {
	if re, ok := err.(*ResolutionError); ok {
		return re.Kind
	}
	return ""
}

// IsUnreachable reports whether err is a fetch failure.
func IsUnreachable(err error) bool { return kindOf(err) == KindUnreachable }

// IsMalformed reports whether err is a zero-field/zero-table document.
func IsMalformed(err error) bool { return kindOf(err) == KindMalformed }

// IsParseFailure reports whether err is invalid schema syntax.
func IsParseFailure(err error) bool { return kindOf(err) == KindParseFailure }
