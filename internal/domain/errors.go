package domain

import "errors"

var (
	// ErrRuleNotFound is returned when a rule or root is unknown, or when no term of a rule matched.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrDuplicateRule is returned when a catalog scope declares the same name twice.
	ErrDuplicateRule = errors.New("duplicate rule name")
	// ErrInvalidRule is returned for rules that cannot be evaluated, such as rules without terms.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrContentTooLarge is returned when a page exceeds the configured maximum length.
	ErrContentTooLarge = errors.New("content too large")
)
