package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/intake"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

type Conversations interface {
	Start(ctx context.Context) (*intake.Reply, error)
	Handle(ctx context.Context, sessionID, text string) (*intake.Reply, error)
	Session(ctx context.Context, id string) (*intake.Session, error)
}

type Schedule interface {
	Doctors(ctx context.Context) ([]string, error)
	OpenSlots(ctx context.Context, doctor, date string) ([]schedule.Slot, error)
}

type Outbox interface {
	List(limit int) ([]string, error)
}

type AppointmentLog interface {
	List(ctx context.Context) ([]appointment.Appointment, error)
}

type PatientDirectory interface {
	List(ctx context.Context) ([]patient.Patient, error)
}

type RouterConfig struct {
	Conversations Conversations
	Schedule      Schedule
	Outbox        Outbox
	Appointments  AppointmentLog
	Patients      PatientDirectory
	PatientsFile  string // served as a download when set
	SchedulesFile string // served as a download when set
	Health        *HealthHandler
	Gatherer      prometheus.Gatherer
	Logger        *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/sessions", startSessionHandler(cfg.Conversations))
	r.Get("/sessions/{id}", getSessionHandler(cfg.Conversations))
	r.Post("/sessions/{id}/messages", postMessageHandler(cfg.Conversations, cfg.Logger))

	r.Get("/doctors", listDoctorsHandler(cfg.Schedule))
	r.Get("/doctors/{doctor}/slots", listSlotsHandler(cfg.Schedule))

	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/outbox", listOutboxHandler(cfg.Outbox))
	r.Get("/patients", listPatientsHandler(cfg.Patients))

	if cfg.PatientsFile != "" {
		r.Get("/exports/patients.csv", exportFileHandler(cfg.PatientsFile, "patients.csv", "text/csv"))
	}
	if cfg.SchedulesFile != "" {
		r.Get("/exports/doctor_schedules.xlsx", exportFileHandler(cfg.SchedulesFile, "doctor_schedules.xlsx",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	}

	return r
}
