package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/intake"
	"github.com/hackgods/clinic-intake-agent/internal/metrics"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

type stubConversations struct {
	handleErr error
	lastText  string
}

func (s *stubConversations) Start(context.Context) (*intake.Reply, error) {
	return &intake.Reply{SessionID: "s-1", Stage: intake.StageCollect, Messages: []string{"hello"}}, nil
}

func (s *stubConversations) Handle(_ context.Context, id, text string) (*intake.Reply, error) {
	if s.handleErr != nil {
		return nil, s.handleErr
	}
	s.lastText = text
	return &intake.Reply{SessionID: id, Stage: intake.StageInsurance, Messages: []string{"got it"}}, nil
}

func (s *stubConversations) Session(_ context.Context, id string) (*intake.Session, error) {
	if id != "s-1" {
		return nil, intake.ErrSessionNotFound
	}
	return &intake.Session{ID: id, Stage: intake.StagePickSlot}, nil
}

type stubSchedule struct {
	lastDate string
}

func (s *stubSchedule) Doctors(context.Context) ([]string, error) {
	return []string{"Dr_Iyer", "Dr_Sharma"}, nil
}

func (s *stubSchedule) OpenSlots(_ context.Context, doctor, date string) ([]schedule.Slot, error) {
	s.lastDate = date
	return []schedule.Slot{{Doctor: doctor, Date: date, StartTime: "09:00", EndTime: "09:30"}}, nil
}

type stubOutbox struct {
	lastLimit int
}

func (s *stubOutbox) List(limit int) ([]string, error) {
	s.lastLimit = limit
	return []string{"email_a.txt", "sms_a.txt"}, nil
}

type stubLog struct{}

func (stubLog) List(context.Context) ([]appointment.Appointment, error) {
	return []appointment.Appointment{{ID: "A1-x", Status: appointment.StatusConfirmed}}, nil
}

type stubPatients struct{}

func (stubPatients) List(context.Context) ([]patient.Patient, error) {
	return []patient.Patient{{ID: 1, FirstName: "Jane", LastName: "Doe", DOB: "1990-04-12"}}, nil
}

type testServer struct {
	handler  http.Handler
	conv     *stubConversations
	schedule *stubSchedule
	outbox   *stubOutbox
	metrics  *metrics.Metrics
	dataDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	ts := &testServer{
		conv:     &stubConversations{},
		schedule: &stubSchedule{},
		outbox:   &stubOutbox{},
		metrics:  metrics.New(reg),
		dataDir:  t.TempDir(),
	}
	ts.handler = NewRouter(RouterConfig{
		Conversations: ts.conv,
		Schedule:      ts.schedule,
		Outbox:        ts.outbox,
		Appointments:  stubLog{},
		Patients:      stubPatients{},
		PatientsFile:  filepath.Join(ts.dataDir, "patients.csv"),
		SchedulesFile: filepath.Join(ts.dataDir, "doctor_schedules.xlsx"),
		Health:        NewHealthHandler(nil, nil, nil, "test", "v0"),
		Gatherer:      reg,
		Logger:        logging.Discard(),
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func TestStartSession(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var reply intake.Reply
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reply))
	assert.Equal(t, "s-1", reply.SessionID)
	assert.Equal(t, intake.StageCollect, reply.Stage)
}

func TestPostMessage(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/sessions/s-1/messages", `{"text":"Jane Doe"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Jane Doe", ts.conv.lastText)

	rr = ts.do(http.MethodPost, "/sessions/s-1/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	ts.conv.handleErr = intake.ErrSessionBusy
	rr = ts.do(http.MethodPost, "/sessions/s-1/messages", `{"text":"1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "session_busy")

	ts.conv.handleErr = errors.New("disk full")
	rr = ts.do(http.MethodPost, "/sessions/s-1/messages", `{"text":"1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/sessions/s-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"stage":"pick_slot"`)

	rr = ts.do(http.MethodGet, "/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSlotsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/doctors", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"doctors":["Dr_Iyer","Dr_Sharma"]}`, rr.Body.String())

	rr = ts.do(http.MethodGet, "/doctors/Dr_Iyer/slots?date=2024-01-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Dr_Iyer", resp.Doctor)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "2024-01-01", ts.schedule.lastDate)

	rr = ts.do(http.MethodGet, "/doctors/Dr_Iyer/slots?date=01/01/2024", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOutboxAndAppointments(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/outbox", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, defaultOutboxLimit, ts.outbox.lastLimit)

	rr = ts.do(http.MethodGet, "/outbox?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, ts.outbox.lastLimit)

	rr = ts.do(http.MethodGet, "/outbox?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodGet, "/appointments", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"appointment_id":"A1-x"`)
}

func TestPatientsAndExports(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/patients", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"first_name":"Jane"`)

	rr = ts.do(http.MethodGet, "/exports/doctor_schedules.xlsx", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "file_not_found")

	csvBody := "patient_id,first_name,last_name\n1,Jane,Doe\n"
	require.NoError(t, os.WriteFile(filepath.Join(ts.dataDir, "patients.csv"), []byte(csvBody), 0o644))

	rr = ts.do(http.MethodGet, "/exports/patients.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="patients.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, csvBody, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.metrics.ObserveReservation("booked", 0.01)

	rr := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "clinic_schedule_reservations_total")
}
