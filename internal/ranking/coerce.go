package ranking

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// LenientInt decodes any JSON value into an integer using leading-integer semantics:
// "12abc" and 12.9 become 12, while null, booleans, objects and non-numeric strings become 0.
type LenientInt int

func (n *LenientInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		*n = LenientInt(CoerceInt(s))
		return nil
	}
	*n = LenientInt(CoerceInt(string(b)))
	return nil
}

// Int returns the plain integer.
func (n LenientInt) Int() int { return int(n) }

// CoerceInt parses the optional sign and digits at the start of s (after leading whitespace).
// Anything without a leading integer, or out of range, yields 0.
func CoerceInt(s string) int {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}
