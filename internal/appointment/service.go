package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-intake-agent/internal/metrics"
	redisclient "github.com/hackgods/clinic-intake-agent/internal/redis"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

const (
	EventAppointmentBooked = "APPOINTMENT_BOOKED"
	EventReservationFailed = "RESERVATION_FAILED"
)

// scheduleLockKey names the lock around workbook rewrites. Reserve rewrites
// every sheet, so one lock covers the whole store rather than one slot.
const scheduleLockKey = "doctor_schedules"

type Options struct {
	ReminderDir string
	Events      EventSink
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Now         func() time.Time
}

type Service struct {
	slots       SlotReserver
	log         Log
	notifier    Notifier
	locker      redisclient.Locker
	events      EventSink
	metrics     *metrics.Metrics
	logger      *logging.Logger
	reminderDir string
	now         func() time.Time
}

func NewService(slots SlotReserver, log Log, notifier Notifier, locker redisclient.Locker, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = NopEventSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		slots:       slots,
		log:         log,
		notifier:    notifier,
		locker:      locker,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		reminderDir: opts.ReminderDir,
		now:         opts.Now,
	}
}

// Book reserves the requested slot and, once the reservation holds, records
// exactly one appointment with its notifications and reminder plan.
//
// Reservation failures come back as schedule.ErrSlotNotFound,
// schedule.ErrSlotAlreadyBooked or ErrSlotBeingBooked and leave nothing
// written. After a successful reservation cancellation of ctx is ignored.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	slot := req.Slot
	started := time.Now()

	err := s.locker.WithLock(ctx, scheduleLockKey, func(lockCtx context.Context) error {
		// the store reloads and re-checks the booked flag inside the lock
		return s.slots.Reserve(lockCtx, slot.Doctor, slot.Date, slot.StartTime, req.Patient.ID)
	})
	elapsed := time.Since(started).Seconds()

	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			outcome = "busy"
			err = ErrSlotBeingBooked
		case errors.Is(err, schedule.ErrSlotAlreadyBooked):
			outcome = "already_booked"
		case errors.Is(err, schedule.ErrSlotNotFound):
			outcome = "not_found"
		default:
			err = fmt.Errorf("reserve slot: %w", err)
		}
		s.metrics.ObserveReservation(outcome, elapsed)
		s.logger.Info("reservation failed", "slot", slot.Key(), "patient_id", req.Patient.ID, "outcome", outcome)
		s.logEvent(ctx, "", EventReservationFailed, map[string]any{
			"slot":       slot.Key(),
			"patient_id": req.Patient.ID,
			"outcome":    outcome,
		})
		return nil, err
	}
	s.metrics.ObserveReservation("booked", elapsed)

	// the slot is taken from here on; the log row must follow even if the
	// caller's deadline (a session lock TTL, say) runs out meanwhile
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	appt := s.newAppointment(req, now)

	emailPath, smsPath, err := s.notifier.SendConfirmation(req.Patient, appt)
	if err != nil {
		s.logger.Error("confirmation not written", "appointment_id", appt.ID, "error", err)
	}
	appt.ConfirmationEmailPath = emailPath
	appt.SMSLogPath = smsPath

	formPath, err := s.notifier.SendForm(req.Patient)
	if err != nil {
		s.logger.Error("intake form not copied", "appointment_id", appt.ID, "error", err)
	}
	appt.FormsSentPath = formPath

	if err := s.log.Append(ctx, appt); err != nil {
		// the slot stays reserved; the log row is what is missing
		s.logger.Error("appointment log append failed after reservation", "appointment_id", appt.ID, "slot", slot.Key(), "error", err)
		return nil, fmt.Errorf("append appointment: %w", err)
	}

	if s.reminderDir != "" {
		if _, err := WriteReminderPlan(s.reminderDir, appt, now); err != nil {
			s.logger.Warn("reminder plan not written", "appointment_id", appt.ID, "error", err)
		}
	}

	s.logEvent(ctx, appt.ID, EventAppointmentBooked, map[string]any{
		"slot":         slot.Key(),
		"patient_id":   appt.PatientID,
		"duration_min": appt.DurationMin,
	})
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "slot", slot.Key(), "patient_id", appt.PatientID)

	return &appt, nil
}

func (s *Service) newAppointment(req BookingRequest, now time.Time) Appointment {
	name := req.PatientName
	if strings.TrimSpace(name) == "" {
		name = req.Patient.FullName()
	}
	return Appointment{
		ID:               newAppointmentID(now),
		PatientID:        req.Patient.ID,
		PatientName:      name,
		DOB:              req.DOB,
		Doctor:           req.Slot.Doctor,
		Location:         req.Slot.Location,
		Date:             req.Slot.Date,
		StartTime:        req.Slot.StartTime,
		EndTime:          req.Slot.EndTime,
		DurationMin:      DurationFor(req.NewPatient),
		InsuranceCompany: req.Insurance.Company,
		MemberID:         req.Insurance.MemberID,
		GroupNumber:      req.Insurance.GroupNumber,
		Status:           StatusConfirmed,
		CreatedAt:        now.Format("2006-01-02T15:04:05"),
	}
}

// newAppointmentID is A<unix seconds>-<8 hex>; the suffix keeps two
// bookings in the same second apart.
func newAppointmentID(now time.Time) string {
	return fmt.Sprintf("A%d-%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) logEvent(ctx context.Context, appointmentID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert booking event", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}
