package device

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// recordFields is the number of comma-separated fields in an add line.
	recordFields = 5

	// expireLayout is the only accepted expiry format.
	expireLayout = "2006-01-02"

	// AddUsage is the canonical add syntax, used in error and usage replies.
	AddUsage = "/add <id>,<username>,<password>,<expire>,<allowoffline>"
)

// expirePattern enforces 4-2-2 digit grouping ahead of the calendar check.
var expirePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseRecord parses "<id>,<username>,<password>,<expire>,<allowoffline>".
// Fields are trimmed. The line must contain exactly five fields, a
// non-empty id and a real calendar date.
func ParseRecord(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != recordFields {
		return Record{}, formatErrorf("Invalid format. Use: " + AddUsage)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	record := Record{
		ID:           parts[0],
		Username:     parts[1],
		Password:     parts[2],
		Expire:       parts[3],
		AllowOffline: ParseAllowOffline(parts[4]),
	}
	if err := ValidateRecord(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// ParseAllowOffline is true only for a case-insensitive "true".
func ParseAllowOffline(token string) bool {
	return strings.EqualFold(strings.TrimSpace(token), "true")
}

// ValidateRecord checks the id and expiry of r.
func ValidateRecord(r Record) error {
	if r.ID == "" {
		return formatErrorf("Invalid format. Device id must not be empty.")
	}
	return ValidateExpire(r.Expire)
}

// ValidateExpire checks that expire is a real YYYY-MM-DD date.
// Past dates are accepted.
func ValidateExpire(expire string) error {
	if !expirePattern.MatchString(expire) {
		return formatErrorf(fmt.Sprintf("Invalid expire date %q. Use YYYY-MM-DD.", expire))
	}
	if _, err := time.Parse(expireLayout, expire); err != nil {
		return formatErrorf(fmt.Sprintf("Invalid expire date %q: no such calendar date.", expire))
	}
	return nil
}
