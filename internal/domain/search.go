package domain

import (
	"fmt"

	apperrors "github.com/utafrali/itemsearch/pkg/errors"
	"github.com/utafrali/itemsearch/pkg/validator"
)

// Minimum number of field/value pairs each request shape needs.
const (
	MinFieldSearchPairs = 1
	MinBoolSearchPairs  = 2
)

// SearchRequest carries parallel field names and search values. Entry i of
// FieldName pairs with entry i of SearchValue.
type SearchRequest struct {
	FieldName   []string `json:"fieldName" validate:"dive,required"`
	SearchValue []string `json:"searchValue" validate:"eqfield=FieldName,dive,required"`
}

// FieldValue is a single field name paired with the value searched for.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Pairs zips FieldName and SearchValue positionally. Entries without a
// counterpart on the other side are dropped.
func (r *SearchRequest) Pairs() []FieldValue {
	n := min(len(r.FieldName), len(r.SearchValue))
	pairs := make([]FieldValue, n)
	for i := 0; i < n; i++ {
		pairs[i] = FieldValue{Field: r.FieldName[i], Value: r.SearchValue[i]}
	}
	return pairs
}

// Validate checks that both sequences have the same length, contain no empty
// entries, and hold at least minPairs pairs.
func (r *SearchRequest) Validate(minPairs int) error {
	if err := validator.Validate(r); err != nil {
		return err
	}
	if len(r.FieldName) < minPairs {
		return apperrors.InvalidInput(fmt.Sprintf(
			"at least %d field/value pair(s) required, got %d", minPairs, len(r.FieldName)))
	}
	return nil
}
