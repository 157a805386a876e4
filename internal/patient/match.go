package patient

import "strings"

// SplitName returns the first and last whitespace separated tokens of a
// full name. Middle tokens are dropped. ok is false for fewer than two tokens.
func SplitName(fullName string) (first, last string, ok bool) {
	parts := strings.Fields(fullName)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[len(parts)-1], true
}

// Match finds the first patient, in slice order, whose first and last name
// equal those of fullName ignoring case. When dob parses as YYYY-MM-DD the
// stored date of birth must fall on the same calendar day; otherwise dob is
// ignored.
func Match(patients []Patient, fullName, dob string) (*Patient, bool) {
	first, last, ok := SplitName(fullName)
	if !ok {
		return nil, false
	}

	want, hasDOB := ParseDOB(dob)

	for i := range patients {
		p := patients[i]
		if !strings.EqualFold(strings.TrimSpace(p.FirstName), first) ||
			!strings.EqualFold(strings.TrimSpace(p.LastName), last) {
			continue
		}
		if hasDOB {
			got, ok := normalizeStoredDOB(p.DOB)
			if !ok || !sameDay(got, want) {
				continue
			}
		}
		return &p, true
	}
	return nil, false
}
