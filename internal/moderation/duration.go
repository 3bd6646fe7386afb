package moderation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxTimeout is the longest timeout the platform accepts.
const MaxTimeout = 28 * 24 * time.Hour

var durationPattern = regexp.MustCompile(`^(\d+)(\w)$`)

// ValidationError is a malformed moderator input. Message is shown verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ParseDuration accepts "<N>h" or "<N>d". "0h" is valid.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, invalid("Unknown time: %s", raw)
	}

	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, invalid("Unknown time: %s", raw)
	}

	var unit time.Duration
	switch match[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, invalid("Only hours or days")
	}

	if amount > int64(MaxTimeout/unit) {
		return 0, invalid("Timeouts can be at most 28 days")
	}
	return time.Duration(amount) * unit, nil
}

// FormatDuration renders d as "N days M hours", dropping zero parts.
func FormatDuration(d time.Duration) string {
	hours := int64(d.Round(time.Hour) / time.Hour)
	days := hours / 24
	remaining := hours % 24

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if remaining > 0 {
		parts = append(parts, plural(remaining, "hour"))
	}
	if len(parts) == 0 {
		return "0 hours"
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
