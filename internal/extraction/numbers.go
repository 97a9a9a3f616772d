package extraction

import (
	"strconv"
	"strings"
)

// ParsePrice parses a price string with comma or dot decimal
// separator ("4,20" -> 4.20, "1.234,56" -> 1234.56). Currency symbols
// and surrounding whitespace are tolerated. A value that does not
// parse as a number yields nil, never an error.
func ParsePrice(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "EUR"), "EUR")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// Trailing minus as printed on refund lines.
	negative := strings.HasSuffix(s, "-")
	s = strings.TrimSuffix(s, "-")
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}

	if strings.Contains(s, ",") {
		// Comma is the decimal separator; dots are thousand grouping.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// parseQuantity parses an item quantity, defaulting to 1 when the
// string is empty or unparseable. Weights like "0,456" are valid
// quantities.
func parseQuantity(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1
	}
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}
