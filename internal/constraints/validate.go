// Package constraints implements the ingest-time field validator: a
// fixed, ordered sequence of checks run per declared field constraint,
// accumulating every failure rather than stopping at the first one, per
// the spec's enforcement-mode rules. It is the one component in Lattice
// that deliberately does not fail fast, mirroring how the validator
// described in spec.md differs from every other pipeline stage.
package constraints

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
)

// Code is one of the fixed validation error codes.
type Code string

const (
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	CodeNullNotAllowed       Code = "NULL_NOT_ALLOWED"
	CodeTypeMismatch         Code = "TYPE_MISMATCH"
	CodePatternMismatch      Code = "PATTERN_MISMATCH"
	CodeValueTooSmall        Code = "VALUE_TOO_SMALL"
	CodeValueTooLarge        Code = "VALUE_TOO_LARGE"
	CodeStringTooShort       Code = "STRING_TOO_SHORT"
	CodeStringTooLong        Code = "STRING_TOO_LONG"
	CodeArrayTooShort        Code = "ARRAY_TOO_SHORT"
	CodeArrayTooLong         Code = "ARRAY_TOO_LONG"
	CodeValueNotAllowed      Code = "VALUE_NOT_ALLOWED"
	CodeInvalidArrayElement Code = "INVALID_ARRAY_ELEMENT"
	CodeUnexpectedField      Code = "UNEXPECTED_FIELD"
)

// Failure is one accumulated validation error.
type Failure struct {
	Field string
	Code  Code
	Detail string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s (%s)", f.Field, f.Detail, f.Code)
}

// Error is returned when one or more Failures accumulate. It wraps
// errs.ErrValidation for errors.Is checks at call boundaries.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	return fmt.Sprintf("constraints: %d validation failure(s)", len(e.Failures))
}

// Unwrap makes errors.Is(err, errs.ErrValidation) succeed at call
// boundaries without every caller needing to type-assert *Error first.
func (e *Error) Unwrap() error {
	return errs.ErrValidation
}

// Validate checks leaves (the flattened document) against constraints
// under the given enforcement mode. It returns nil if the document
// passes, or *Error with every accumulated Failure otherwise.
func Validate(mode model.SchemaEnforcementMode, constraintList []model.FieldConstraint, leaves []jsonflat.Leaf) error {
	if mode == model.EnforcementNone {
		return nil
	}

	byField := make(map[string][]jsonflat.Leaf)
	for _, l := range leaves {
		byField[l.Path] = append(byField[l.Path], l)
	}

	declared := make(map[string]bool, len(constraintList))
	var failures []Failure

	for _, c := range constraintList {
		declared[c.Field] = true
		present := byField[c.Field]
		failures = append(failures, checkField(mode, c, present)...)
	}

	if mode == model.EnforcementStrict {
		for path := range byField {
			if !declared[path] {
				failures = append(failures, Failure{
					Field: path, Code: CodeUnexpectedField,
					Detail: "field has no declared constraint",
				})
			}
		}
	}

	if len(failures) == 0 {
		return nil
	}
	return &Error{Failures: failures}
}

// checkField runs the fixed, ordered check list against all leaf values
// found at c.Field (more than one when the path sits under an array).
//
// A path is treated as array-valued when the constraint names an
// ArrayElementType, or when this document simply has more than one
// leaf at that path — the only way that happens is array flattening,
// since a plain object key contributes exactly one leaf per document.
// MinLength/MaxLength then bound the array's element count rather than
// any single element's string length, per spec's MinLength/MaxLength
// row ("string length ... or array length").
func checkField(mode model.SchemaEnforcementMode, c model.FieldConstraint, present []jsonflat.Leaf) []Failure {
	var failures []Failure

	if len(present) == 0 {
		if c.Required && mode != model.EnforcementPartial {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeMissingRequiredField,
				Detail: "required field is absent",
			})
		}
		return failures
	}

	isArray := c.ArrayElementType != "" || len(present) > 1

	for _, leaf := range present {
		failures = append(failures, checkValue(c, leaf, isArray)...)
	}

	if isArray && (c.MinLength != nil || c.MaxLength != nil) {
		n := len(present)
		if c.MinLength != nil && n < *c.MinLength {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeArrayTooShort,
				Detail: fmt.Sprintf("array has %d element(s), minimum is %d", n, *c.MinLength),
			})
		}
		if c.MaxLength != nil && n > *c.MaxLength {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeArrayTooLong,
				Detail: fmt.Sprintf("array has %d element(s), maximum is %d", n, *c.MaxLength),
			})
		}
	}
	return failures
}

func checkValue(c model.FieldConstraint, leaf jsonflat.Leaf, isArray bool) []Failure {
	var failures []Failure

	if leaf.IsNull {
		if !c.Nullable {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeNullNotAllowed,
				Detail: "null value not permitted",
			})
		}
		// Every subsequent check operates on a non-null scalar value;
		// nothing more to check for a null leaf.
		return failures
	}

	if c.DataType != "" && c.DataType != leaf.DataType {
		// integer values are acceptable where a "number" type is
		// declared, since every integer is also a valid number.
		if !(c.DataType == model.LeafNumber && leaf.DataType == model.LeafInteger) {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeTypeMismatch,
				Detail: fmt.Sprintf("expected %s, got %s", c.DataType, leaf.DataType),
			})
			// A type mismatch makes the remaining type-specific checks
			// meaningless; skip them for this value.
			return failures
		}
	}

	if c.Pattern != "" && leaf.DataType == model.LeafString {
		if ok, _ := regexp.MatchString(c.Pattern, leaf.Encoded); !ok {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodePatternMismatch,
				Detail: fmt.Sprintf("value does not match pattern %q", c.Pattern),
			})
		}
	}

	if c.MinValue != nil || c.MaxValue != nil {
		failures = append(failures, checkRange(c, leaf)...)
	}

	if !isArray && (c.MinLength != nil || c.MaxLength != nil) {
		failures = append(failures, checkLength(c, leaf)...)
	}

	if len(c.AllowedValues) > 0 {
		allowed := false
		for _, v := range c.AllowedValues {
			if v == leaf.Encoded {
				allowed = true
				break
			}
		}
		if !allowed {
			failures = append(failures, Failure{
				Field: c.Field, Code: CodeValueNotAllowed,
				Detail: fmt.Sprintf("value %q is not in the allowed set", leaf.Encoded),
			})
		}
	}

	if c.ArrayElementType != "" && leaf.DataType != c.ArrayElementType {
		failures = append(failures, Failure{
			Field: c.Field, Code: CodeInvalidArrayElement,
			Detail: fmt.Sprintf("array element expected %s, got %s", c.ArrayElementType, leaf.DataType),
		})
	}

	return failures
}

func checkRange(c model.FieldConstraint, leaf jsonflat.Leaf) []Failure {
	if leaf.DataType != model.LeafInteger && leaf.DataType != model.LeafNumber {
		return nil
	}
	f, err := strconv.ParseFloat(leaf.Encoded, 64)
	if err != nil {
		return nil
	}
	var failures []Failure
	if c.MinValue != nil && f < *c.MinValue {
		failures = append(failures, Failure{
			Field: c.Field, Code: CodeValueTooSmall,
			Detail: fmt.Sprintf("value %v is below minimum %v", f, *c.MinValue),
		})
	}
	if c.MaxValue != nil && f > *c.MaxValue {
		failures = append(failures, Failure{
			Field: c.Field, Code: CodeValueTooLarge,
			Detail: fmt.Sprintf("value %v is above maximum %v", f, *c.MaxValue),
		})
	}
	return failures
}

func checkLength(c model.FieldConstraint, leaf jsonflat.Leaf) []Failure {
	if leaf.DataType != model.LeafString {
		return nil
	}
	n := len([]rune(leaf.Encoded))
	var failures []Failure
	if c.MinLength != nil && n < *c.MinLength {
		failures = append(failures, Failure{
			Field: c.Field, Code: CodeStringTooShort,
			Detail: fmt.Sprintf("length %d is below minimum %d", n, *c.MinLength),
		})
	}
	if c.MaxLength != nil && n > *c.MaxLength {
		failures = append(failures, Failure{
			Field: c.Field, Code: CodeStringTooLong,
			Detail: fmt.Sprintf("length %d is above maximum %d", n, *c.MaxLength),
		})
	}
	return failures
}
