package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
	ErrStoreUnreadable   = errors.New("schedule store unreadable")
)

// WorkbookStore keeps every doctor's slots in one Excel workbook, one sheet
// per doctor. Nothing is cached: every call opens the file again.
type WorkbookStore struct {
	path   string
	logger *logging.Logger
}

func NewWorkbookStore(path string, logger *logging.Logger) *WorkbookStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &WorkbookStore{path: path, logger: logger}
}

// Path returns the backing workbook.
func (s *WorkbookStore) Path() string {
	return s.path
}

// Doctors lists the sheet names of the workbook.
func (s *WorkbookStore) Doctors(ctx context.Context) ([]string, error) {
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// OpenSlots returns the unbooked slots of doctor on date. A missing sheet or
// an unreadable workbook gives an empty list.
func (s *WorkbookStore) OpenSlots(ctx context.Context, doctor, date string) ([]Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.open()
	if err != nil {
		s.logger.Warn("schedule store unreadable, reporting no slots", "path", s.path, "error", err)
		return []Slot{}, nil
	}
	defer f.Close()

	if !hasSheet(f, doctor) {
		return []Slot{}, nil
	}

	sh, err := readSheet(f, doctor)
	if err != nil {
		s.logger.Warn("doctor sheet unreadable, reporting no slots", "doctor", doctor, "error", err)
		return []Slot{}, nil
	}

	date = strings.TrimSpace(date)
	available := []Slot{}
	for _, row := range sh.data() {
		slot := sh.slot(doctor, row)
		if slot.Date != date || slot.Booked {
			continue
		}
		available = append(available, slot)
	}
	return available, nil
}

// Reserve marks the slot (doctor, date, startTime) booked for patientID.
//
// The whole workbook is reloaded and the booked check and the update run on
// that same snapshot. On ErrSlotNotFound and ErrSlotAlreadyBooked nothing is
// written. On success every sheet is written back in one file replacement.
// Two processes calling Reserve at once can still both pass the check; callers
// that need more must hold a lock around Reserve.
func (s *WorkbookStore) Reserve(ctx context.Context, doctor, date, startTime string, patientID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if !hasSheet(f, doctor) {
		return ErrSlotNotFound
	}

	target, err := readSheet(f, doctor)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreadable, err)
	}

	date = strings.TrimSpace(date)
	startTime = strings.TrimSpace(startTime)

	var matches []int
	for _, row := range target.data() {
		if target.get(row, colDate) == date && target.get(row, colStartTime) == startTime {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return ErrSlotNotFound
	}
	for _, row := range matches {
		if parseBooked(target.get(row, colBooked)) {
			return ErrSlotAlreadyBooked
		}
	}

	for _, name := range f.GetSheetList() {
		sh, err := readSheet(f, name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnreadable, err)
		}
		if err := sh.normalizeBooked(f); err != nil {
			return fmt.Errorf("normalize %s: %w", name, err)
		}
	}

	// re-read so column positions include anything normalize added
	target, err = readSheet(f, doctor)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreadable, err)
	}
	patientCol, err := target.ensureColumn(f, colPatientID)
	if err != nil {
		return fmt.Errorf("add patient_id column: %w", err)
	}
	bookedCol := target.index[colBooked]

	for _, row := range matches {
		if err := setCell(f, doctor, bookedCol, row, true); err != nil {
			return err
		}
		if err := setCell(f, doctor, patientCol, row, patientID); err != nil {
			return err
		}
	}

	return saveAtomic(f, s.path)
}

func (s *WorkbookStore) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreadable, err)
	}
	return f, nil
}

// CreateWorkbook writes a fresh schedule workbook with one sheet per doctor.
func CreateWorkbook(path string, slots map[string][]Slot) error {
	if len(slots) == 0 {
		return errors.New("create workbook: no doctors given")
	}

	doctors := make([]string, 0, len(slots))
	for d := range slots {
		doctors = append(doctors, d)
	}
	sort.Strings(doctors)

	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, doctor := range doctors {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, doctor); err != nil {
				return fmt.Errorf("name sheet %s: %w", doctor, err)
			}
		} else if _, err := f.NewSheet(doctor); err != nil {
			return fmt.Errorf("add sheet %s: %w", doctor, err)
		}

		header := make([]interface{}, 0, len(Columns))
		for _, c := range Columns {
			header = append(header, c)
		}
		if err := f.SetSheetRow(doctor, "A1", &header); err != nil {
			return fmt.Errorf("write header %s: %w", doctor, err)
		}

		for j, slot := range slots[doctor] {
			row := []interface{}{slot.Date, slot.StartTime, slot.EndTime, slot.Location, slot.Booked}
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(doctor, cell, &row); err != nil {
				return fmt.Errorf("write slot row %s: %w", doctor, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	return saveAtomic(f, path)
}

// saveAtomic writes to a sibling temp file and renames it over path.
func saveAtomic(f *excelize.File, path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".xlsx")
	if err := f.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func hasSheet(f *excelize.File, name string) bool {
	for _, s := range f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// sheet is the cell text of one doctor's table. Row and column numbers are
// zero based; row 0 is the header.
type sheet struct {
	name   string
	rows   [][]string
	index  map[string]int
	header int
}

func readSheet(f *excelize.File, name string) (*sheet, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}
	sh := &sheet{name: name, rows: rows, index: make(map[string]int)}
	if len(rows) > 0 {
		for i, h := range rows[0] {
			h = strings.ToLower(strings.TrimSpace(h))
			if h == "" {
				continue
			}
			if _, dup := sh.index[h]; !dup {
				sh.index[h] = i
			}
		}
		sh.header = len(rows[0])
	}
	return sh, nil
}

// data returns the row numbers holding at least one non-blank cell.
func (sh *sheet) data() []int {
	var out []int
	for i := 1; i < len(sh.rows); i++ {
		for _, c := range sh.rows[i] {
			if strings.TrimSpace(c) != "" {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func (sh *sheet) get(row int, col string) string {
	i, ok := sh.index[col]
	if !ok || i >= len(sh.rows[row]) {
		return ""
	}
	return strings.TrimSpace(sh.rows[row][i])
}

func (sh *sheet) slot(doctor string, row int) Slot {
	slot := Slot{
		Doctor:    doctor,
		Date:      sh.get(row, colDate),
		StartTime: sh.get(row, colStartTime),
		EndTime:   sh.get(row, colEndTime),
		Location:  sh.get(row, colLocation),
		Booked:    parseBooked(sh.get(row, colBooked)),
	}
	if v := sh.get(row, colPatientID); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			slot.PatientID = &id
		}
	}
	return slot
}

// ensureColumn returns the column of name, appending a header cell when the
// sheet does not have one yet.
func (sh *sheet) ensureColumn(f *excelize.File, name string) (int, error) {
	if i, ok := sh.index[name]; ok {
		return i, nil
	}
	col := sh.header
	if err := setCell(f, sh.name, col, 0, name); err != nil {
		return 0, err
	}
	sh.index[name] = col
	sh.header++
	return col, nil
}

// normalizeBooked rewrites every data row's booked cell as a boolean, adding
// the column when it is absent. Blank cells become false.
func (sh *sheet) normalizeBooked(f *excelize.File) error {
	if len(sh.rows) == 0 {
		return nil
	}
	col, err := sh.ensureColumn(f, colBooked)
	if err != nil {
		return err
	}
	for _, row := range sh.data() {
		if err := setCell(f, sh.name, col, row, parseBooked(sh.get(row, colBooked))); err != nil {
			return err
		}
	}
	return nil
}
