package appointment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-intake-agent/internal/patient"
	redisclient "github.com/hackgods/clinic-intake-agent/internal/redis"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

type stubNotifier struct {
	mu    sync.Mutex
	sent  int
	fail  bool
	forms int
}

func (n *stubNotifier) SendConfirmation(p patient.Patient, appt Appointment) (string, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return "", "", errors.New("outbox full")
	}
	n.sent++
	return "outbox/email_" + appt.ID + ".txt", "outbox/sms_" + appt.ID + ".txt", nil
}

func (n *stubNotifier) SendForm(p patient.Patient) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forms++
	return "", nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []EventLog
}

func (s *recordingSink) InsertEvent(_ context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fixture struct {
	svc      *Service
	slots    *schedule.WorkbookStore
	log      *ExcelLog
	notifier *stubNotifier
	sink     *recordingSink
	locker   redisclient.Locker
	dir      string
}

var fixedNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	slotsPath := filepath.Join(dir, "doctor_schedules.xlsx")
	require.NoError(t, schedule.CreateWorkbook(slotsPath, map[string][]schedule.Slot{
		"Dr_Sharma": {
			{Date: "2024-01-01", StartTime: "09:00", EndTime: "09:30", Location: "Indiranagar"},
			{Date: "2024-01-01", StartTime: "10:00", EndTime: "10:30", Location: "Indiranagar"},
		},
	}))

	fx := &fixture{
		slots:    schedule.NewWorkbookStore(slotsPath, logging.Discard()),
		log:      NewExcelLog(filepath.Join(dir, "appointments.xlsx")),
		notifier: &stubNotifier{},
		sink:     &recordingSink{},
		locker:   redisclient.NewLocalLocker(20 * time.Millisecond),
		dir:      dir,
	}
	fx.svc = NewService(fx.slots, fx.log, fx.notifier, fx.locker, Options{
		ReminderDir: filepath.Join(dir, "outbox"),
		Events:      fx.sink,
		Logger:      logging.Discard(),
		Now:         func() time.Time { return fixedNow },
	})
	return fx
}

func request(start string, newPatient bool) BookingRequest {
	return BookingRequest{
		Patient:     patient.Patient{ID: 1, FirstName: "Jane", LastName: "Doe"},
		PatientName: "Jane Doe",
		DOB:         "1990-04-12",
		Slot: schedule.Slot{
			Doctor: "Dr_Sharma", Date: "2024-01-01", StartTime: start, EndTime: "09:30", Location: "Indiranagar",
		},
		NewPatient: newPatient,
		Insurance:  patient.Insurance{Company: "Acme", MemberID: "M1", GroupNumber: "G1"},
	}
}

func TestBookNewPatient(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	appt, err := fx.svc.Book(ctx, request("09:00", true))
	require.NoError(t, err)

	assert.Regexp(t, `^A\d+-[0-9a-f]{8}$`, appt.ID)
	assert.Equal(t, 60, appt.DurationMin)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, "Acme", appt.InsuranceCompany)
	assert.Equal(t, "2024-01-01T08:00:00", appt.CreatedAt)
	assert.NotEmpty(t, appt.ConfirmationEmailPath)
	assert.NotEmpty(t, appt.SMSLogPath)
	assert.Empty(t, appt.FormsSentPath)

	logged, err := fx.log.List(ctx)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, *appt, logged[0])

	open, err := fx.slots.OpenSlots(ctx, "Dr_Sharma", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "10:00", open[0].StartTime)

	_, err = os.Stat(filepath.Join(fx.dir, "outbox", "reminders_"+appt.ID+".csv"))
	assert.NoError(t, err)

	assert.Equal(t, []string{EventAppointmentBooked}, fx.sink.types())
}

func TestBookReturningPatientIsShorter(t *testing.T) {
	fx := newFixture(t)

	appt, err := fx.svc.Book(context.Background(), request("09:00", false))
	require.NoError(t, err)
	assert.Equal(t, 30, appt.DurationMin)
}

func TestBookReservationFailuresWriteNothing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.svc.Book(ctx, request("09:00", true))
	require.NoError(t, err)

	_, err = fx.svc.Book(ctx, request("09:00", true))
	assert.ErrorIs(t, err, schedule.ErrSlotAlreadyBooked)

	_, err = fx.svc.Book(ctx, request("15:00", true))
	assert.ErrorIs(t, err, schedule.ErrSlotNotFound)

	n, err := fx.log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, fx.notifier.sent)
	assert.Equal(t, []string{EventAppointmentBooked, EventReservationFailed, EventReservationFailed}, fx.sink.types())
}

func TestBookWhileLockHeld(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	var bookErr error
	err := fx.locker.WithLock(ctx, scheduleLockKey, func(context.Context) error {
		_, bookErr = fx.svc.Book(ctx, request("09:00", true))
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, bookErr, ErrSlotBeingBooked)

	open, err := fx.slots.OpenSlots(ctx, "Dr_Sharma", "2024-01-01")
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestBookConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.svc.locker = redisclient.NewLocalLocker(5 * time.Second)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Book(ctx, request("09:00", true))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	booked := 0
	for err := range errs {
		if err == nil {
			booked++
			continue
		}
		assert.ErrorIs(t, err, schedule.ErrSlotAlreadyBooked)
	}
	assert.Equal(t, 1, booked)

	n, err := fx.log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBookNotificationFailureStillLogs(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.notifier.fail = true

	appt, err := fx.svc.Book(ctx, request("10:00", true))
	require.NoError(t, err)
	assert.Empty(t, appt.ConfirmationEmailPath)

	n, err := fx.log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// slowReserver holds the store lock past its TTL after reserving.
type slowReserver struct {
	SlotReserver
	delay time.Duration
}

func (r slowReserver) Reserve(ctx context.Context, doctor, date, startTime string, patientID int) error {
	err := r.SlotReserver.Reserve(ctx, doctor, date, startTime, patientID)
	time.Sleep(r.delay)
	return err
}

func TestBookLogsAppointmentWhenDeadlinePassesAfterReserve(t *testing.T) {
	fx := newFixture(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewService(slowReserver{SlotReserver: fx.slots, delay: 400 * time.Millisecond}, fx.log, fx.notifier,
		redisclient.NewRedisLocker(client, 300*time.Millisecond, time.Second), Options{
			ReminderDir: filepath.Join(fx.dir, "outbox"),
			Events:      fx.sink,
			Logger:      logging.Discard(),
			Now:         func() time.Time { return fixedNow },
		})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	appt, err := svc.Book(ctx, request("09:00", true))
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	logged, err := fx.log.List(context.Background())
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, appt.ID, logged[0].ID)

	open, err := fx.slots.OpenSlots(context.Background(), "Dr_Sharma", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "10:00", open[0].StartTime)
	assert.Equal(t, []string{EventAppointmentBooked}, fx.sink.types())
}
