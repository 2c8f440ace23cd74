package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "£0.00"},
		{12.5, "£12.50"},
		{999.999, "£1,000.00"},
		{1234567.891, "£1,234,567.89"},
		{-12.5, "-£12.50"},
		{-0.001, "£0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(tt.amount, "£"))
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "12.3%", FormatPercent(0.1234, 1))
	assert.Equal(t, "100%", FormatPercent(1, 0))
	assert.Equal(t, "15.00%", FormatPercent(0.15, 2))
}
