package domain

import (
	"fmt"
	"net"
	"regexp"
)

var macRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// IsValidMAC checks if the string is a valid MAC address
func IsValidMAC(mac string) bool {
	return macRegex.MatchString(mac)
}

// ValidateReport checks the sender MAC and the fields of a node report.
func ValidateReport(mac string, r Report) error {
	if !IsValidMAC(mac) {
		return fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	if r.IP != "" && net.ParseIP(r.IP) == nil {
		return fmt.Errorf("%w: bad ip %q", ErrInvalidReport, r.IP)
	}
	if r.Mem != nil && (*r.Mem < 0 || *r.Mem > 100) {
		return fmt.Errorf("%w: memory usage %v out of range", ErrInvalidReport, *r.Mem)
	}
	return nil
}
