package schedule

import "strings"

// Slot is one bookable row of a doctor's sheet.
type Slot struct {
	Doctor    string `json:"doctor"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location"`
	Booked    bool   `json:"booked"`
	PatientID *int   `json:"patient_id,omitempty"`
}

// Label is how a slot is shown to the patient.
func (s Slot) Label() string {
	return s.Date + " " + s.StartTime + " (" + s.Location + ")"
}

// Key identifies a slot across the whole store.
func (s Slot) Key() string {
	return SlotKey(s.Doctor, s.Date, s.StartTime)
}

// SlotKey builds the identity used for locking a slot.
func SlotKey(doctor, date, startTime string) string {
	return strings.Join([]string{doctor, strings.TrimSpace(date), strings.TrimSpace(startTime)}, "|")
}

const (
	colDate      = "date"
	colStartTime = "start_time"
	colEndTime   = "end_time"
	colLocation  = "location"
	colBooked    = "booked"
	colPatientID = "patient_id"
)

// Columns is the header written for new doctor sheets.
var Columns = []string{colDate, colStartTime, colEndTime, colLocation, colBooked}

// parseBooked treats blanks and anything unrecognized as not booked.
func parseBooked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
