package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrExhausted is returned after every transport retry failed.
var ErrExhausted = errors.New("retry budget exhausted")

// APIError is a business failure reported by the provider itself
// (non-zero return_code in an otherwise well-formed response). These
// are never retried.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// CleanNumeric parses the provider's numeric strings, which arrive with
// sign prefixes, thousands separators and the occasional percent sign
// ("--1,234", "+5.67%"). Unparseable input yields 0.
func CleanNumeric(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")

	neg := false
	for len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			neg = true
		}
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if neg {
		return -v
	}
	return v
}
