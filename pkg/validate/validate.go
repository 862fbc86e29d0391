// Package validate holds the field-shape predicates used by the matching
// engine and the exceptions workflow. All predicates tolerate blank or
// missing input and simply report false.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	nationalIDRe = regexp.MustCompile(`^\d{10}$`)
	// Saudi mobile numbers: optional +966/966/0 prefix then 5xxxxxxxx.
	saudiMobileRe = regexp.MustCompile(`^(?:\+966|966|0)?5\d{8}$`)

	v = validator.New()
)

// NationalID reports whether s is a well-formed 10-digit national ID.
func NationalID(s string) bool {
	return nationalIDRe.MatchString(strings.TrimSpace(s))
}

// Phone reports whether any comma-separated entry in csv is a valid Saudi
// mobile number. Spaces and dashes inside an entry are ignored.
func Phone(csv string) bool {
	for _, entry := range splitCSV(csv) {
		entry = strings.NewReplacer(" ", "", "-", "").Replace(entry)
		if saudiMobileRe.MatchString(entry) {
			return true
		}
	}
	return false
}

// Email reports whether any comma-separated entry in csv has a plausible
// local@domain.tld shape.
func Email(csv string) bool {
	for _, entry := range splitCSV(csv) {
		if v.Var(entry, "email") == nil {
			return true
		}
	}
	return false
}

// SchoolAgeDOB reports whether dob is plausible for a school-age student:
// present, within the last 25 years, and not within the last 3 years.
func SchoolAgeDOB(dob *time.Time) bool {
	if dob == nil || dob.IsZero() {
		return false
	}
	now := time.Now().UTC()
	if dob.Before(now.AddDate(-25, 0, 0)) {
		return false
	}
	if dob.After(now.AddDate(-3, 0, 0)) {
		return false
	}
	return true
}

func splitCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
