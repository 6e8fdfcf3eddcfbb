package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"pantry-sync/internal/budget"
)

// ValidationError is a locally rejected intent. No network call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a local validation rejection.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func validateItemFields(name string, quantity int, price float64) *ValidationError {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

func validateItemStatus(status string) *ValidationError {
	switch status {
	case "", budget.ItemToBuy, budget.ItemInPantry, budget.ItemBought:
		return nil
	}
	return &ValidationError{Field: "status", Reason: "must be to_buy, in_pantry or bought"}
}

// validateItemUpdate checks a single-field item update and normalizes the
// value type. Numeric values arrive as int or float64 depending on the
// caller's decode path.
func validateItemUpdate(field string, value any) (any, *ValidationError) {
	switch field {
	case "quantity":
		q, ok := toInt(value)
		if !ok || q <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
		}
		return q, nil
	case "price":
		p, ok := toFloat(value)
		if !ok || p < 0 {
			return nil, &ValidationError{Field: "price", Reason: "must be a non-negative number"}
		}
		return p, nil
	case "status":
		s, ok := value.(string)
		if !ok {
			return nil, &ValidationError{Field: "status", Reason: "must be a string"}
		}
		if vErr := validateItemStatus(s); vErr != nil {
			return nil, vErr
		}
		return s, nil
	case "store":
		s, ok := value.(string)
		if !ok {
			return nil, &ValidationError{Field: "store", Reason: "must be a string"}
		}
		return s, nil
	}
	return nil, &ValidationError{Field: field, Reason: "is not an updatable item field"}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
