// internal/pkg/money/inr_test.go
package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatINR(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   string
	}{
		{"zero", 0, "₹0"},
		{"single digit", 7, "₹7"},
		{"three digits", 999, "₹999"},
		{"four digits", 1000, "₹1,000"},
		{"five digits", 49999, "₹49,999"},
		{"six digits", 149999, "₹1,49,999"},
		{"seven digits", 1499999, "₹14,99,999"},
		{"one crore", 10000000, "₹1,00,00,000"},
		{"large amount", 123456789, "₹12,34,56,789"},
		{"negative", -1500, "-₹1,500"},
		{"negative lakh", -149999, "-₹1,49,999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatINR(tt.amount))
		})
	}
}
