package regular

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// moscowUTCOffsetHours is the reference point of the numeric timezone form.
const moscowUTCOffsetHours = 3

// ResolveLocation resolves the configured timezone string once, at startup.
//
// Accepted forms:
//   - "" - the host's local timezone
//   - an IANA name, e.g. "Europe/Moscow"
//   - a signed number of hours relative to Moscow (UTC+3), e.g. "2" means
//     UTC+5 and "-3" means UTC. This is a compatibility convention carried
//     over from the historical user configs, kept on purpose.
func ResolveLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Local, nil
	}
	if loc, err := time.LoadLocation(s); err == nil {
		return loc, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		utcOffset := moscowUTCOffsetHours + n
		if utcOffset < -12 || utcOffset > 14 {
			return nil, fmt.Errorf("timezone offset %q resolves to UTC%+d, out of range", s, utcOffset)
		}
		return time.FixedZone(fmt.Sprintf("UTC%+d", utcOffset), utcOffset*3600), nil
	}
	return nil, fmt.Errorf("unrecognized timezone %q", s)
}
