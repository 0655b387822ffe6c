// Package validate provides element-wise validation of request collections
// with per-index error aggregation.
package validate

import "fmt"

// ItemError is a validation failure for one element of a collection.
type ItemError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Message)
}

// Each applies the item validator to every element and aggregates failures
// by index. Returns nil when every element passes.
func Each[T any](items []T, validateItem func(T) error) []ItemError {
	var errs []ItemError
	for i, item := range items {
		if err := validateItem(item); err != nil {
			errs = append(errs, ItemError{Index: i, Message: err.Error()})
		}
	}
	return errs
}

// NonEmptyString returns an item validator rejecting empty strings.
func NonEmptyString(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}
