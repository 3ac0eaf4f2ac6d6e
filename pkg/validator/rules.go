package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// Required fails when the trimmed value is empty.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

// InListString fails when value is not one of the allowed values.
func InListString(field, value string, allowed []string) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		},
	}
}

// Matches fails when value does not match the pattern. Empty values pass so
// the rule composes with Required without double-reporting.
func Matches(field, value string, pattern *regexp.Regexp, hint string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			return pattern.MatchString(value)
		},
		Error: ValidationError{Field: field, Message: hint},
	}
}

// MaxLen fails when value exceeds max bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)},
	}
}
