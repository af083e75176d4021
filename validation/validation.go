package validation

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Violations collects the rule failures per attribute.
type Violations struct {
	Errors map[string][]error
}

func (violations Violations) MarshalJSON() ([]byte, error) {
	errors := make(map[string][]string)
	for fieldName, fieldErrors := range violations.Errors {
		errors[fieldName] = make([]string, len(fieldErrors))
		for index, fieldError := range fieldErrors {
			errors[fieldName][index] = fieldError.Error()
		}
	}

	return json.Marshal(map[string]map[string][]string{
		"errors": errors,
	})
}

// Error lists every violation, sorted by attribute name.
func (violations Violations) Error() string {
	names := make([]string, 0, len(violations.Errors))
	for name := range violations.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("validation failed")
	for _, name := range names {
		for _, err := range violations.Errors[name] {
			sb.WriteString("; ")
			sb.WriteString(err.Error())
		}
	}
	return sb.String()
}

func (violations Violations) IsEmpty() bool {
	return len(violations.Errors) == 0
}

// Merge adds the violations of other under prefix.
func (violations *Violations) Merge(prefix string, other Violations) {
	if violations.Errors == nil {
		violations.Errors = make(map[string][]error)
	}
	for name, errs := range other.Errors {
		violations.Errors[prefix+name] = append(violations.Errors[prefix+name], errs...)
	}
}

// ValidateMap checks every attribute of data against its rules. Rules are
// written as "name" or "name:argument":
//
//	required        non-empty string, non-nil value
//	min:N, max:N    bounds for numbers, length bounds for strings
//	oneof:a|b|c     the string value is one of the listed options
//	prefix:P        the string value starts with P
//	hostport        the string value is a host:port pair
//	duration        the value is a duration or a string time.ParseDuration accepts
func ValidateMap(data map[string]any, rules map[string][]string) Violations {
	var violations Violations
	violations.Errors = make(map[string][]error)

	for attributeName, attributeValue := range data {
		attributeRules, attributeRulesExists := rules[attributeName]
		if !attributeRulesExists {
			violations.Errors[attributeName] = append(violations.Errors[attributeName], fmt.Errorf("validation: no rules found :: %s", attributeName))
			continue
		}

		var errorCollection []error
		for _, attributeRule := range attributeRules {
			if err := validate(attributeRule, attributeName, attributeValue); err != nil {
				errorCollection = append(errorCollection, err)
			}
		}

		if len(errorCollection) != 0 {
			violations.Errors[attributeName] = errorCollection
		}
	}

	return violations
}

func validate(rule string, name string, value any) error {
	rule, argument, _ := strings.Cut(rule, ":")

	switch rule {
	case "required":
		err := fmt.Errorf("%s is required", name)

		switch v := value.(type) {
		case nil:
			return err
		case string:
			if v == "" {
				return err
			}
		case []any:
			if len(v) == 0 {
				return err
			}
		}
	case "min", "max":
		bound, err := strconv.ParseFloat(argument, 64)
		if err != nil {
			return fmt.Errorf("invalid validation rule :: %s:%s", rule, argument)
		}
		size, ok := sizeOf(value)
		if !ok {
			return fmt.Errorf("%s must be a number or a string", name)
		}
		if rule == "min" && !ValidateGreaterThenOrEqual(size, bound) {
			return fmt.Errorf("%s must be at least %s", name, argument)
		}
		if rule == "max" && !ValidateLesserThenOrEqual(size, bound) {
			return fmt.Errorf("%s must be at most %s", name, argument)
		}
	case "oneof":
		options := strings.Split(argument, "|")
		s, _ := value.(string)
		for _, option := range options {
			if s == option {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of %s", name, strings.Join(options, ", "))
	case "prefix":
		s, _ := value.(string)
		if !ValidateHasPrefix(s, argument) {
			return fmt.Errorf("%s must start with %q", name, argument)
		}
	case "hostport":
		s, _ := value.(string)
		if !ValidateHostPort(s) {
			return fmt.Errorf("%s must be a host:port address", name)
		}
	case "duration":
		switch v := value.(type) {
		case time.Duration:
		case string:
			if !ValidateDuration(v) {
				return fmt.Errorf("%s must be a duration", name)
			}
		default:
			return fmt.Errorf("%s must be a duration", name)
		}
	default:
		return fmt.Errorf("invalid validation rule :: %s", rule)
	}

	return nil
}

func sizeOf(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case time.Duration:
		return float64(v), true
	case string:
		return float64(len(v)), true
	}
	return 0, false
}

// Numberic operations
func ValidateGreaterThenOrEqual(value float64, size float64) bool {
	return value >= size
}

func ValidateLesserThenOrEqual(value float64, size float64) bool {
	return value <= size
}

// string operations
func ValidateHasPrefix(value string, prefix string) bool {
	return strings.HasPrefix(value, prefix)
}

func ValidateHostPort(value string) bool {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// Time operations
func ValidateDuration(value string) bool {
	_, err := time.ParseDuration(value)
	return err == nil
}
