package intake

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hackgods/clinic-intake-agent/internal/patient"
)

var (
	ErrInvalidSelection    = errors.New("invalid slot selection")
	ErrSelectionOutOfRange = fmt.Errorf("%w: number out of range", ErrInvalidSelection)
)

// Unknown fills insurance fields the patient left out.
const Unknown = "Unknown"

const restartCommand = "restart"

// Defaults fill the intake fields a message does not name.
type Defaults struct {
	Doctor   string
	Location string
}

// IntakeForm is what the collect stage extracts from one message.
type IntakeForm struct {
	Name     string `json:"name"`
	DOB      string `json:"dob,omitempty"`
	Doctor   string `json:"doctor"`
	Location string `json:"location"`
}

// ParseError reports an intake message that cannot be used.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ParseIntake reads comma separated intake text such as
//
//	name=Jane Doe, dob=1990-04-12, doctor=Dr_Iyer, location=Koramangala
//
// A segment belongs to a field when it contains the field's label in any
// case; its value is whatever follows the first "=", or the whole segment
// when there is none. Without a name segment the first segment is the name.
// Doctor and location fall back to def. DOB has no fallback.
func ParseIntake(text string, def Defaults) (IntakeForm, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return IntakeForm{}, &ParseError{Field: "name", Reason: "message is empty"}
	}
	segments := strings.Split(text, ",")

	form := IntakeForm{
		Name:     labelled(segments, "name"),
		DOB:      labelled(segments, "dob"),
		Doctor:   labelled(segments, "doctor"),
		Location: labelled(segments, "location"),
	}
	if form.Name == "" {
		form.Name = strings.TrimSpace(segments[0])
	}
	if form.Doctor == "" {
		form.Doctor = def.Doctor
	}
	if form.Location == "" {
		form.Location = def.Location
	}

	if _, _, ok := patient.SplitName(form.Name); !ok {
		return form, &ParseError{Field: "name", Reason: "need both a first and a last name"}
	}
	return form, nil
}

func labelled(segments []string, label string) string {
	for _, seg := range segments {
		if !strings.Contains(strings.ToLower(seg), label) {
			continue
		}
		if i := strings.Index(seg, "="); i >= 0 {
			return strings.TrimSpace(seg[i+1:])
		}
		return strings.TrimSpace(seg)
	}
	return ""
}

// ParseInsurance reads "carrier, member_id, group_number". Missing or blank
// parts become Unknown.
func ParseInsurance(text string) patient.Insurance {
	parts := strings.Split(text, ",")
	part := func(i int) string {
		if i < len(parts) {
			if v := strings.TrimSpace(parts[i]); v != "" {
				return v
			}
		}
		return Unknown
	}
	return patient.Insurance{
		Company:     part(0),
		MemberID:    part(1),
		GroupNumber: part(2),
	}
}

// ParseSelection reads the leading integer of text as a zero based index
// into a list of n slots.
func ParseSelection(text string, n int) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, ErrInvalidSelection
	}
	i, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, ErrInvalidSelection
	}
	if i < 0 || i >= n {
		return 0, ErrSelectionOutOfRange
	}
	return i, nil
}

// IsRestart reports whether text is the restart command.
func IsRestart(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), restartCommand)
}
