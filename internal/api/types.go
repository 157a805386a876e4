package api

import (
	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
)

type MessageRequest struct {
	Text string `json:"text"`
}

type DoctorsResponse struct {
	Doctors []string `json:"doctors"`
}

type SlotsResponse struct {
	Doctor string          `json:"doctor"`
	Date   string          `json:"date"`
	Slots  []schedule.Slot `json:"slots"`
}

type OutboxResponse struct {
	Files []string `json:"files"`
}

type AppointmentsResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
}

type PatientsResponse struct {
	Patients []patient.Patient `json:"patients"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
