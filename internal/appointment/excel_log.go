package appointment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const logSheet = "appointments"

// Columns is the appointment log header.
var Columns = []string{
	"appointment_id", "patient_id", "patient_name", "dob", "doctor", "location", "date",
	"start_time", "end_time", "duration_min", "insurance_company", "member_id", "group_number",
	"status", "created_at", "reason_if_cancelled", "forms_sent_path", "confirmation_email_path",
	"sms_log_path",
}

// ExcelLog appends appointments to a single-sheet workbook. Existing rows
// are never touched.
type ExcelLog struct {
	path string
	mu   sync.Mutex
}

func NewExcelLog(path string) *ExcelLog {
	return &ExcelLog{path: path}
}

// Path returns the backing workbook.
func (l *ExcelLog) Path() string {
	return l.path
}

func (l *ExcelLog) Append(ctx context.Context, appt Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, sheet, err := l.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read appointment log: %w", err)
	}

	index := make(map[string]int)
	width := 0
	if len(rows) > 0 {
		for i, h := range rows[0] {
			if h = strings.TrimSpace(h); h != "" {
				index[h] = i
			}
		}
		width = len(rows[0])
	}
	for _, col := range Columns {
		if _, ok := index[col]; ok {
			continue
		}
		index[col] = width
		if err := setLogCell(f, sheet, width, 0, col); err != nil {
			return err
		}
		width++
	}

	row := len(rows)
	if row == 0 {
		row = 1
	}
	for col, value := range appt.values() {
		if err := setLogCell(f, sheet, index[col], row, value); err != nil {
			return err
		}
	}

	return saveWorkbook(f, l.path)
}

// List reads every logged appointment in row order.
func (l *ExcelLog) List(ctx context.Context) ([]Appointment, error) {
	f, err := excelize.OpenFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Appointment{}, nil
		}
		return nil, fmt.Errorf("open appointment log: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read appointment log: %w", err)
	}
	if len(rows) == 0 {
		return []Appointment{}, nil
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		index[strings.TrimSpace(h)] = i
	}

	out := make([]Appointment, 0, len(rows)-1)
	for _, r := range rows[1:] {
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(r) {
				return ""
			}
			return strings.TrimSpace(r[i])
		}
		if get("appointment_id") == "" {
			continue
		}
		out = append(out, appointmentFromRow(get))
	}
	return out, nil
}

// Count returns the number of logged appointments.
func (l *ExcelLog) Count(ctx context.Context) (int, error) {
	all, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (l *ExcelLog) openOrCreate() (*excelize.File, string, error) {
	f, err := excelize.OpenFile(l.path)
	if err == nil {
		return f, f.GetSheetName(0), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("open appointment log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, "", fmt.Errorf("create appointment log dir: %w", err)
	}
	f = excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), logSheet); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("name appointment sheet: %w", err)
	}
	return f, logSheet, nil
}

func (a Appointment) values() map[string]interface{} {
	return map[string]interface{}{
		"appointment_id":          a.ID,
		"patient_id":              a.PatientID,
		"patient_name":            a.PatientName,
		"dob":                     a.DOB,
		"doctor":                  a.Doctor,
		"location":                a.Location,
		"date":                    a.Date,
		"start_time":              a.StartTime,
		"end_time":                a.EndTime,
		"duration_min":            a.DurationMin,
		"insurance_company":       a.InsuranceCompany,
		"member_id":               a.MemberID,
		"group_number":            a.GroupNumber,
		"status":                  string(a.Status),
		"created_at":              a.CreatedAt,
		"reason_if_cancelled":     a.ReasonIfCancelled,
		"forms_sent_path":         a.FormsSentPath,
		"confirmation_email_path": a.ConfirmationEmailPath,
		"sms_log_path":            a.SMSLogPath,
	}
}

func appointmentFromRow(get func(string) string) Appointment {
	patientID, _ := strconv.Atoi(get("patient_id"))
	duration, _ := strconv.Atoi(get("duration_min"))
	return Appointment{
		ID:                    get("appointment_id"),
		PatientID:             patientID,
		PatientName:           get("patient_name"),
		DOB:                   get("dob"),
		Doctor:                get("doctor"),
		Location:              get("location"),
		Date:                  get("date"),
		StartTime:             get("start_time"),
		EndTime:               get("end_time"),
		DurationMin:           duration,
		InsuranceCompany:      get("insurance_company"),
		MemberID:              get("member_id"),
		GroupNumber:           get("group_number"),
		Status:                AppointmentStatus(get("status")),
		CreatedAt:             get("created_at"),
		ReasonIfCancelled:     get("reason_if_cancelled"),
		FormsSentPath:         get("forms_sent_path"),
		ConfirmationEmailPath: get("confirmation_email_path"),
		SMSLogPath:            get("sms_log_path"),
	}
}

func setLogCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func saveWorkbook(f *excelize.File, path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".xlsx")
	if err := f.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write appointment log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace appointment log: %w", err)
	}
	return nil
}
