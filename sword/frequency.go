package sword

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Update frequencies are compact duration strings such as "1w3d" or
// "5w4d3h2m1s": one or more number+unit groups, units being weeks, days,
// hours, minutes and seconds.
var frequencyRe = regexp.MustCompile(`^([0-9]+[wdhms])+$`)

var frequencyPartRe = regexp.MustCompile(`([0-9]+)([wdhms])`)

var unitDurations = map[string]time.Duration{
	"w": 7 * 24 * time.Hour,
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

var unitNames = map[string]string{
	"w": "week(s)",
	"d": "day(s)",
	"h": "hour(s)",
	"m": "minute(s)",
	"s": "second(s)",
}

// ValidFrequency reports whether raw is a well-formed update frequency.
func ValidFrequency(raw string) bool {
	return frequencyRe.MatchString(raw)
}

// ParseFrequency converts an update frequency like "5w4d3h2m1s" into a
// time.Duration.
func ParseFrequency(raw string) (time.Duration, error) {
	if !ValidFrequency(raw) {
		return 0, fmt.Errorf("malformed update frequency %q", raw)
	}
	var total time.Duration
	for _, part := range frequencyPartRe.FindAllStringSubmatch(raw, -1) {
		n, err := strconv.Atoi(part[1])
		if err != nil {
			return 0, fmt.Errorf("malformed update frequency %q: %w", raw, err)
		}
		total += time.Duration(n) * unitDurations[part[2]]
	}
	return total, nil
}

// HumanizeFrequency converts "3w4d" into "Every 3 week(s), 4 day(s)",
// listing only the units present in the input.
func HumanizeFrequency(raw string) string {
	parts := frequencyPartRe.FindAllStringSubmatch(raw, -1)
	if !ValidFrequency(raw) || len(parts) == 0 {
		return raw
	}
	humanized := make([]string, 0, len(parts))
	for _, part := range parts {
		humanized = append(humanized, part[1]+" "+unitNames[part[2]])
	}
	return "Every " + strings.Join(humanized, ", ")
}
