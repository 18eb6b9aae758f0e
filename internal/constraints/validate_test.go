package constraints

import (
	"errors"
	"testing"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(err error) []Code {
	verr, ok := err.(*Error)
	if !ok {
		return nil
	}
	var codes []Code
	for _, f := range verr.Failures {
		codes = append(codes, f.Code)
	}
	return codes
}

func TestValidateNoneModeSkipsEverything(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Required: true}}
	err := Validate(model.EnforcementNone, cs, nil)
	assert.NoError(t, err)
}

func TestValidateStrictMissingRequired(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Required: true}}
	err := Validate(model.EnforcementStrict, cs, nil)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeMissingRequiredField)
}

func TestValidateErrorUnwrapsToErrValidation(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Required: true}}
	err := Validate(model.EnforcementStrict, cs, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestValidatePartialModeIgnoresMissingRequired(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Required: true, DataType: model.LeafInteger}}
	err := Validate(model.EnforcementPartial, cs, nil)
	assert.NoError(t, err)
}

func TestValidatePartialModeStillChecksPresentFields(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Required: true, DataType: model.LeafInteger}}
	leaves := []jsonflat.Leaf{{Path: "age", DataType: model.LeafString, Encoded: "old"}}
	err := Validate(model.EnforcementPartial, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeTypeMismatch)
}

func TestValidateNullNotAllowed(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", Nullable: false}}
	leaves := []jsonflat.Leaf{{Path: "age", DataType: model.LeafNull, IsNull: true, Encoded: jsonflat.NullSentinel}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeNullNotAllowed)
}

func TestValidateIntegerSatisfiesNumberConstraint(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "score", DataType: model.LeafNumber}}
	leaves := []jsonflat.Leaf{{Path: "score", DataType: model.LeafInteger, Encoded: "7"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	assert.NoError(t, err)
}

func TestValidateRangeChecks(t *testing.T) {
	min, max := 1.0, 10.0
	cs := []model.FieldConstraint{{Field: "score", DataType: model.LeafNumber, MinValue: &min, MaxValue: &max}}
	leaves := []jsonflat.Leaf{{Path: "score", DataType: model.LeafNumber, Encoded: "99"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeValueTooLarge)
}

func TestValidateLengthChecks(t *testing.T) {
	minLen := 5
	cs := []model.FieldConstraint{{Field: "name", DataType: model.LeafString, MinLength: &minLen}}
	leaves := []jsonflat.Leaf{{Path: "name", DataType: model.LeafString, Encoded: "ab"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeStringTooShort)
}

func TestValidatePatternMismatch(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "email", DataType: model.LeafString, Pattern: `^\S+@\S+$`}}
	leaves := []jsonflat.Leaf{{Path: "email", DataType: model.LeafString, Encoded: "not-an-email"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodePatternMismatch)
}

func TestValidateAllowedValues(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "status", DataType: model.LeafString, AllowedValues: []string{"open", "closed"}}}
	leaves := []jsonflat.Leaf{{Path: "status", DataType: model.LeafString, Encoded: "pending"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeValueNotAllowed)
}

func TestValidateFlexibleModeAllowsUnexpectedFields(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", DataType: model.LeafInteger}}
	leaves := []jsonflat.Leaf{
		{Path: "age", DataType: model.LeafInteger, Encoded: "5"},
		{Path: "extra", DataType: model.LeafString, Encoded: "x"},
	}
	err := Validate(model.EnforcementFlexible, cs, leaves)
	assert.NoError(t, err)
}

func TestValidateStrictModeRejectsUnexpectedFields(t *testing.T) {
	cs := []model.FieldConstraint{{Field: "age", DataType: model.LeafInteger}}
	leaves := []jsonflat.Leaf{
		{Path: "age", DataType: model.LeafInteger, Encoded: "5"},
		{Path: "extra", DataType: model.LeafString, Encoded: "x"},
	}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeUnexpectedField)
}

func TestValidateAccumulatesAllFailures(t *testing.T) {
	cs := []model.FieldConstraint{
		{Field: "age", Required: true},
		{Field: "name", Required: true},
	}
	err := Validate(model.EnforcementStrict, cs, nil)
	require.Error(t, err)
	assert.Len(t, codesOf(err), 2)
}

func TestValidateArrayLengthViaMinLengthWithArrayElementType(t *testing.T) {
	minLength := 2
	cs := []model.FieldConstraint{{Field: "tags", ArrayElementType: model.LeafString, MinLength: &minLength}}
	leaves := []jsonflat.Leaf{{Path: "tags", DataType: model.LeafString, Encoded: "only-one"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeArrayTooShort)
}

// A constraint using exactly the fields spec.md §3's FieldConstraint
// allows (maxLength, no arrayElementType) must still bound array length
// when the document's leaves at that path outnumber one, since multiple
// leaves at the same path within a single document only arise from
// array flattening.
func TestValidateArrayLengthViaMaxLengthWithoutArrayElementType(t *testing.T) {
	maxLength := 2
	cs := []model.FieldConstraint{{Field: "tags", MaxLength: &maxLength}}
	leaves := []jsonflat.Leaf{
		{Path: "tags", DataType: model.LeafString, Encoded: "a"},
		{Path: "tags", DataType: model.LeafString, Encoded: "b"},
		{Path: "tags", DataType: model.LeafString, Encoded: "c"},
	}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeArrayTooLong)
}

// A plain scalar string field must still get string-length enforcement,
// not array-length enforcement, when MinLength/MaxLength is declared.
func TestValidateScalarStringLengthUnaffectedByArrayLogic(t *testing.T) {
	minLength := 5
	cs := []model.FieldConstraint{{Field: "name", MinLength: &minLength}}
	leaves := []jsonflat.Leaf{{Path: "name", DataType: model.LeafString, Encoded: "ab"}}
	err := Validate(model.EnforcementStrict, cs, leaves)
	require.Error(t, err)
	assert.Contains(t, codesOf(err), CodeStringTooShort)
}
