package appointment

import (
	"time"

	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

const (
	NewPatientMinutes       = 60
	ReturningPatientMinutes = 30
)

// Appointment is one row of the appointment log. Rows are written once and
// never changed.
type Appointment struct {
	ID                    string            `json:"appointment_id"`
	PatientID             int               `json:"patient_id"`
	PatientName           string            `json:"patient_name"`
	DOB                   string            `json:"dob"`
	Doctor                string            `json:"doctor"`
	Location              string            `json:"location"`
	Date                  string            `json:"date"`
	StartTime             string            `json:"start_time"`
	EndTime               string            `json:"end_time"`
	DurationMin           int               `json:"duration_min"`
	InsuranceCompany      string            `json:"insurance_company"`
	MemberID              string            `json:"member_id"`
	GroupNumber           string            `json:"group_number"`
	Status                AppointmentStatus `json:"status"`
	CreatedAt             string            `json:"created_at"`
	ReasonIfCancelled     string            `json:"reason_if_cancelled"`
	FormsSentPath         string            `json:"forms_sent_path"`
	ConfirmationEmailPath string            `json:"confirmation_email_path"`
	SMSLogPath            string            `json:"sms_log_path"`
}

// BookingRequest is everything the conversation has gathered by the time a
// slot is picked.
type BookingRequest struct {
	Patient     patient.Patient
	PatientName string
	DOB         string
	Slot        schedule.Slot
	NewPatient  bool
	Insurance   patient.Insurance
}

// DurationFor is 60 minutes for new patients and 30 for returning ones.
func DurationFor(newPatient bool) int {
	if newPatient {
		return NewPatientMinutes
	}
	return ReturningPatientMinutes
}

type EventLog struct {
	EventType     string
	AppointmentID string
	Payload       []byte
	CreatedAt     time.Time
}
