// internal/pkg/money/inr.go
package money

import (
	"strconv"
	"strings"
)

// FormatINR renders a rupee amount with Indian digit grouping (1,49,999).
// Amounts are whole rupees throughout the system; paise only exist at the
// payment gateway boundary.
func FormatINR(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	s := strconv.FormatInt(v, 10)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		s = strings.Join(groups, ",") + "," + tail
	}

	if neg {
		return "-₹" + s
	}
	return "₹" + s
}
