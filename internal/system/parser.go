package system

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

var numberPrefix = regexp.MustCompile(`^(0[xX][0-9a-fA-F]+|[0-9]+)(.*)$`)

// ParseNumber parses an unsigned number the way strtoul(s, NULL, 0) does:
// "0x" prefix is hex, a leading zero is octal, anything else decimal.
// The whole string must be consumed.
func ParseNumber(s string) (uint64, error) {
	digits, base := s, 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		digits, base = s[2:], 16
	case len(s) > 1 && s[0] == '0':
		digits, base = s[1:], 8
	}

	if digits == "" {
		return 0, fmt.Errorf("invalid number: %q", s)
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %q", s)
	}
	return n, nil
}

// ParseSize converts a size string (1048576, 1MiB, 512 KiB, 0x100000) to bytes
func ParseSize(s string) (int64, error) {
	matches := numberPrefix.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bad volume size: %q", s)
	}

	value, err := ParseNumber(matches[1])
	if err != nil {
		return 0, fmt.Errorf("bad volume size: %q", s)
	}

	mult, err := multiplier(matches[2])
	if err != nil {
		return 0, err
	}

	if value > math.MaxInt64/mult {
		return 0, fmt.Errorf("bad volume size: %q (too large)", s)
	}

	return int64(value * mult), nil
}

func multiplier(unit string) (uint64, error) {
	if unit == "" {
		return 1, nil
	}

	switch strings.TrimLeft(unit, " \t") {
	case "KiB":
		return KiB, nil
	case "MiB":
		return MiB, nil
	case "GiB":
		return GiB, nil
	}

	return 0, fmt.Errorf("bad size specifier: %q - should be 'KiB', 'MiB' or 'GiB'", unit)
}

// FormatSize renders bytes with one decimal in GiB, MiB or KiB, picking the
// largest unit the size exceeds
func FormatSize(bytes int64) string {
	switch {
	case bytes > GiB:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/GiB)
	case bytes > MiB:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/MiB)
	default:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/KiB)
	}
}
