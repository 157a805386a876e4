package appointment

import (
	"context"
	"errors"

	"github.com/hackgods/clinic-intake-agent/internal/patient"
)

var (
	ErrSlotBeingBooked = errors.New("schedule is busy with another booking, please retry")
)

// SlotReserver is the part of the schedule store the booking flow needs.
type SlotReserver interface {
	Reserve(ctx context.Context, doctor, date, startTime string, patientID int) error
}

// Log is the append-only appointment log.
type Log interface {
	Append(ctx context.Context, appt Appointment) error
}

// Notifier writes the confirmation artifacts for a booking.
type Notifier interface {
	SendConfirmation(p patient.Patient, appt Appointment) (emailPath, smsPath string, err error)
	SendForm(p patient.Patient) (string, error)
}

// EventSink records booking events somewhere outside the flat files.
type EventSink interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// NopEventSink drops events. Used when no database is configured.
type NopEventSink struct{}

func (NopEventSink) InsertEvent(context.Context, EventLog) error { return nil }
