package appointment

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRemindersFromAppointmentStart(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	appt := Appointment{Date: "2024-01-10", StartTime: "09:00"}

	plan := PlanReminders(appt, now)
	require.Len(t, plan, 3)

	assert.Equal(t, "T-72h", plan[0].When)
	assert.Equal(t, "T-24h", plan[1].When)
	assert.Equal(t, "T-2h", plan[2].When)
	assert.Equal(t, time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC), plan[0].ScheduledAt)
	assert.Equal(t, time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), plan[1].ScheduledAt)
	assert.Equal(t, time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC), plan[2].ScheduledAt)
	for _, r := range plan {
		assert.Equal(t, "pending", r.Status)
	}
}

func TestPlanRemindersFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	soon := PlanReminders(Appointment{Date: "2024-01-01", StartTime: "09:00"}, now)
	unparsed := PlanReminders(Appointment{Date: "someday", StartTime: "morning"}, now)

	for _, plan := range [][]Reminder{soon, unparsed} {
		require.Len(t, plan, 3)
		assert.Equal(t, now.Add(time.Hour), plan[0].ScheduledAt)
		assert.Equal(t, now.Add(2*time.Hour), plan[1].ScheduledAt)
		assert.Equal(t, now.Add(3*time.Hour), plan[2].ScheduledAt)
	}
}

func TestPlanRemindersPartlyDueStaysOrdered(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	// T-2h would still be ahead but T-72h and T-24h are not
	plan := PlanReminders(Appointment{Date: "2024-01-01", StartTime: "10:30"}, now)
	require.Len(t, plan, 3)

	assert.Equal(t, now.Add(time.Hour), plan[0].ScheduledAt)
	assert.Equal(t, now.Add(2*time.Hour), plan[1].ScheduledAt)
	assert.Equal(t, now.Add(3*time.Hour), plan[2].ScheduledAt)
	for i := 1; i < len(plan); i++ {
		assert.True(t, plan[i].ScheduledAt.After(plan[i-1].ScheduledAt), "%s not after %s", plan[i].When, plan[i-1].When)
	}
}

func TestWriteReminderPlan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	path, err := WriteReminderPlan(dir, Appointment{ID: "A1-x", Date: "2024-01-01", StartTime: "09:00"}, now)
	require.NoError(t, err)
	assert.Equal(t, "reminders_A1-x.csv", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, []string{"when", "action", "status", "scheduled_at"}, records[0])
	assert.Equal(t, []string{"T-72h", "reminder_email", "pending", "2024-01-01T09:00:00"}, records[1])
	assert.Equal(t, "T-24h", records[2][0])
	assert.Equal(t, "T-2h", records[3][0])
}
