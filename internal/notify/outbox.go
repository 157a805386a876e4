package notify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/metrics"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

const stampLayout = "20060102_150405"

const emailTemplate = `Subject: Appointment Confirmed - %s %s

Hi %s,

Your appointment with %s is confirmed.
Location: %s
Date: %s at %s (Duration: %d min)

Please find the intake form attached in a separate email.

- Scheduling Agent
`

// Outbox simulates email and SMS delivery by writing text files into a drop
// directory. File names carry a second-resolution stamp, which keeps them
// apart in practice but not by guarantee.
type Outbox struct {
	dir      string
	formPath string
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

type OutboxConfig struct {
	Dir            string
	IntakeFormPath string
	Now            func() time.Time
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
}

func NewOutbox(cfg OutboxConfig) *Outbox {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Outbox{
		dir:      cfg.Dir,
		formPath: cfg.IntakeFormPath,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Dir returns the drop directory.
func (o *Outbox) Dir() string {
	return o.dir
}

// SendConfirmation writes the confirmation email and SMS for appt.
func (o *Outbox) SendConfirmation(p patient.Patient, appt appointment.Appointment) (string, string, error) {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create outbox: %w", err)
	}
	stamp := o.now().Format(stampLayout)

	body := fmt.Sprintf(emailTemplate,
		appt.Date, appt.StartTime,
		p.FirstName,
		appt.Doctor,
		appt.Location,
		appt.Date, appt.StartTime, appt.DurationMin,
	)
	emailPath := filepath.Join(o.dir, o.fileName("email", stamp, p, "txt"))
	if err := os.WriteFile(emailPath, []byte(body), 0o644); err != nil {
		o.metrics.ObserveNotification("email", "failed")
		return "", "", fmt.Errorf("write email: %w", err)
	}
	o.metrics.ObserveNotification("email", "written")

	sms := fmt.Sprintf("CONFIRMED: %s %s with %s at %s", appt.Date, appt.StartTime, appt.Doctor, appt.Location)
	smsPath := filepath.Join(o.dir, o.fileName("sms", stamp, p, "txt"))
	if err := os.WriteFile(smsPath, []byte(sms), 0o644); err != nil {
		o.metrics.ObserveNotification("sms", "failed")
		return emailPath, "", fmt.Errorf("write sms: %w", err)
	}
	o.metrics.ObserveNotification("sms", "written")

	o.logger.Info("confirmation written", "email", emailPath, "sms", smsPath)
	return emailPath, smsPath, nil
}

// SendForm copies the intake form for p. A missing form is not an error and
// gives an empty path.
func (o *Outbox) SendForm(p patient.Patient) (string, error) {
	if o.formPath == "" {
		return "", nil
	}
	src, err := os.Open(o.formPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			o.metrics.ObserveNotification("form", "skipped")
			return "", nil
		}
		return "", fmt.Errorf("open intake form: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", fmt.Errorf("create outbox: %w", err)
	}
	dest := filepath.Join(o.dir, o.fileName("intake_form", o.now().Format(stampLayout), p, "pdf"))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create form copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		o.metrics.ObserveNotification("form", "failed")
		return "", fmt.Errorf("copy intake form: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close form copy: %w", err)
	}
	o.metrics.ObserveNotification("form", "written")
	return dest, nil
}

// List returns up to limit outbox file names, newest name last.
func (o *Outbox) List(limit int) ([]string, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[len(names)-limit:]
	}
	return names, nil
}

func (o *Outbox) fileName(kind, stamp string, p patient.Patient, ext string) string {
	return fmt.Sprintf("%s_%s_%s_%s.%s", kind, stamp, safeName(p.FirstName), safeName(p.LastName), ext)
}

var nameReplacer = strings.NewReplacer("/", "_", `\`, "_", " ", "_")

func safeName(s string) string {
	return nameReplacer.Replace(strings.TrimSpace(s))
}
