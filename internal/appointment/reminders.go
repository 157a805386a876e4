package appointment

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Reminder is one line of a reminder plan. Plans are written for the record;
// nothing in this service sends them.
type Reminder struct {
	When        string
	Action      string
	Status      string
	ScheduledAt time.Time
}

const reminderTimeLayout = "2006-01-02T15:04:05"

var reminderSteps = []struct {
	label    string
	action   string
	before   time.Duration
	fallback time.Duration
}{
	{"T-72h", "reminder_email", 72 * time.Hour, 1 * time.Hour},
	{"T-24h", "reminder_email_sms_form_check", 24 * time.Hour, 2 * time.Hour},
	{"T-2h", "reminder_sms_confirm_or_cancel", 2 * time.Hour, 3 * time.Hour},
}

// PlanReminders stamps each step at the appointment start minus its offset.
// When any of those stamps is already past, or the start does not parse,
// every step falls back to now plus 1, 2 or 3 hours instead, so the stamps
// are always in the future and in step order.
func PlanReminders(appt Appointment, now time.Time) []Reminder {
	start, err := time.ParseInLocation("2006-01-02 15:04", appt.Date+" "+appt.StartTime, now.Location())
	fromStart := err == nil
	if fromStart {
		for _, step := range reminderSteps {
			if !start.Add(-step.before).After(now) {
				fromStart = false
				break
			}
		}
	}

	plan := make([]Reminder, 0, len(reminderSteps))
	for _, step := range reminderSteps {
		at := now.Add(step.fallback)
		if fromStart {
			at = start.Add(-step.before)
		}
		plan = append(plan, Reminder{
			When:        step.label,
			Action:      step.action,
			Status:      "pending",
			ScheduledAt: at.Truncate(time.Second),
		})
	}
	return plan
}

// WriteReminderPlan writes reminders_<appointment_id>.csv into dir and
// returns its path.
func WriteReminderPlan(dir string, appt Appointment, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reminder dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("reminders_%s.csv", appt.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create reminder plan: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	records := [][]string{{"when", "action", "status", "scheduled_at"}}
	for _, r := range PlanReminders(appt, now) {
		records = append(records, []string{r.When, r.Action, r.Status, r.ScheduledAt.Format(reminderTimeLayout)})
	}
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("write reminder plan: %w", err)
	}
	return path, nil
}
