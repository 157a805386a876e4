package patient

import (
	"strings"
	"time"
)

// Insurance is the coverage a patient gave during intake.
type Insurance struct {
	Company     string `json:"insurance_company"`
	MemberID    string `json:"member_id"`
	GroupNumber string `json:"group_number"`
}

type Patient struct {
	ID              int       `json:"patient_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	DOB             string    `json:"dob"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	IsReturning     bool      `json:"is_returning"`
	PreferredDoctor string    `json:"preferred_doctor"`
	Insurance       Insurance `json:"insurance"`
	PastVisitsCount int       `json:"past_visits_count"`
}

// FullName joins first and last name.
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NewPatient carries what intake knows about someone not yet on file.
type NewPatient struct {
	FirstName       string
	LastName        string
	DOB             string
	PreferredDoctor string
	Insurance       Insurance
}

const (
	defaultPhone = "9000000000"
	dobLayout    = "2006-01-02"
)

// storedDOBLayouts are tried in order when normalizing the dob column.
var storedDOBLayouts = []string{
	dobLayout,
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDOB parses an intake date of birth. Only ISO dates are accepted.
func ParseDOB(raw string) (time.Time, bool) {
	t, err := time.Parse(dobLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// normalizeStoredDOB is lenient about how the dob column was written.
func normalizeStoredDOB(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range storedDOBLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
