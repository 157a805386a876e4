package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 1, 8, 30, 15, 0, time.UTC) }

func testOutbox(t *testing.T, formPath string) *Outbox {
	t.Helper()
	return NewOutbox(OutboxConfig{
		Dir:            filepath.Join(t.TempDir(), "outbox"),
		IntakeFormPath: formPath,
		Now:            fixedNow,
		Logger:         logging.Discard(),
	})
}

func sampleAppointment() appointment.Appointment {
	return appointment.Appointment{
		ID:          "A1704097815-abcd1234",
		Doctor:      "Dr_Sharma",
		Location:    "Bangalore - Indiranagar",
		Date:        "2024-01-01",
		StartTime:   "09:00",
		DurationMin: 60,
	}
}

func TestSendConfirmation(t *testing.T) {
	o := testOutbox(t, "")
	p := patient.Patient{FirstName: "Jane", LastName: "Doe"}

	emailPath, smsPath, err := o.SendConfirmation(p, sampleAppointment())
	require.NoError(t, err)

	assert.Equal(t, "email_20240101_083015_Jane_Doe.txt", filepath.Base(emailPath))
	assert.Equal(t, "sms_20240101_083015_Jane_Doe.txt", filepath.Base(smsPath))

	email, err := os.ReadFile(emailPath)
	require.NoError(t, err)
	assert.Contains(t, string(email), "Subject: Appointment Confirmed - 2024-01-01 09:00")
	assert.Contains(t, string(email), "Hi Jane,")
	assert.Contains(t, string(email), "Your appointment with Dr_Sharma is confirmed.")
	assert.Contains(t, string(email), "(Duration: 60 min)")

	sms, err := os.ReadFile(smsPath)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED: 2024-01-01 09:00 with Dr_Sharma at Bangalore - Indiranagar", string(sms))
}

func TestSendFormMissingIsNotAnError(t *testing.T) {
	o := testOutbox(t, filepath.Join(t.TempDir(), "absent.pdf"))

	path, err := o.SendForm(patient.Patient{FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestSendFormCopies(t *testing.T) {
	form := filepath.Join(t.TempDir(), "New Patient Intake Form.pdf")
	require.NoError(t, os.WriteFile(form, []byte("%PDF-1.4 intake"), 0o644))
	o := testOutbox(t, form)

	path, err := o.SendForm(patient.Patient{FirstName: "Mary Anne", LastName: "Smith"})
	require.NoError(t, err)
	assert.Equal(t, "intake_form_20240101_083015_Mary_Anne_Smith.pdf", filepath.Base(path))

	copied, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 intake", string(copied))
}

func TestList(t *testing.T) {
	o := testOutbox(t, "")

	names, err := o.List(10)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, _, err = o.SendConfirmation(patient.Patient{FirstName: "Jane", LastName: "Doe"}, sampleAppointment())
	require.NoError(t, err)

	names, err = o.List(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"sms_20240101_083015_Jane_Doe.txt"}, names)
}
