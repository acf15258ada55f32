package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMAC(t *testing.T) {
	tests := []struct {
		mac   string
		valid bool
	}{
		{"AA:BB:CC:DD:EE:FF", true},
		{"aa:bb:cc:dd:ee:ff", true},
		{"6C-75-14-7D-65-D4", true},
		{"invalid", false},
		{"AA:BB:CC:DD:EE", false},
		{"AA:BB:CC:DD:EE:FF:GG", false},
		{"", false},
	}

	for _, tt := range tests {
		if IsValidMAC(tt.mac) != tt.valid {
			t.Errorf("IsValidMAC(%s) = %v; want %v", tt.mac, IsValidMAC(tt.mac), tt.valid)
		}
	}
}

func TestValidateReport(t *testing.T) {
	assert.NoError(t, ValidateReport("aa:bb:cc:dd:ee:ff", Report{IP: "10.0.0.1", Mem: Float(40)}))
	assert.NoError(t, ValidateReport("aa:bb:cc:dd:ee:ff", Report{}))

	assert.ErrorIs(t, ValidateReport("nope", Report{}), ErrInvalidMAC)
	assert.ErrorIs(t, ValidateReport("aa:bb:cc:dd:ee:ff", Report{IP: "10.0.0"}), ErrInvalidReport)
	assert.ErrorIs(t, ValidateReport("aa:bb:cc:dd:ee:ff", Report{Mem: Float(140)}), ErrInvalidReport)
}
