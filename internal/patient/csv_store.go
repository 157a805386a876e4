package patient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalidName     = errors.New("patient name needs a first and last name")
)

const (
	colID              = "patient_id"
	colFirstName       = "first_name"
	colLastName        = "last_name"
	colDOB             = "dob"
	colEmail           = "email"
	colPhone           = "phone"
	colIsReturning     = "is_returning"
	colPreferredDoctor = "preferred_doctor"
	colInsurance       = "insurance_company"
	colMemberID        = "member_id"
	colGroupNumber     = "group_number"
	colPastVisits      = "past_visits_count"
)

// Columns is the patient table header in the order new files are written.
var Columns = []string{
	colID, colFirstName, colLastName, colDOB, colEmail, colPhone, colIsReturning,
	colPreferredDoctor, colInsurance, colMemberID, colGroupNumber, colPastVisits,
}

// CSVStore keeps the patient table in a single CSV file. Every mutation reads
// the whole file and rewrites it. The mutex only serializes writers inside
// this process.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file.
func (s *CSVStore) Path() string {
	return s.path
}

// List returns every patient in file order.
func (s *CSVStore) List(ctx context.Context) ([]Patient, error) {
	t, err := s.load()
	if err != nil {
		return nil, err
	}
	return t.patients(), nil
}

func (s *CSVStore) Get(ctx context.Context, id int) (*Patient, error) {
	t, err := s.load()
	if err != nil {
		return nil, err
	}
	row := t.find(id)
	if row < 0 {
		return nil, ErrPatientNotFound
	}
	p := t.patient(t.rows[row])
	return &p, nil
}

// Find looks a patient up by full name and date of birth.
func (s *CSVStore) Find(ctx context.Context, fullName, dob string) (*Patient, error) {
	patients, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := Match(patients, fullName, dob)
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

// Register appends a patient with the next free identifier.
func (s *CSVStore) Register(ctx context.Context, np NewPatient) (*Patient, error) {
	if strings.TrimSpace(np.FirstName) == "" || strings.TrimSpace(np.LastName) == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return nil, err
	}

	p := Patient{
		ID:              t.nextID(),
		FirstName:       np.FirstName,
		LastName:        np.LastName,
		DOB:             np.DOB,
		Email:           fmt.Sprintf("%s.%s@example.com", strings.ToLower(np.FirstName), strings.ToLower(np.LastName)),
		Phone:           defaultPhone,
		PreferredDoctor: np.PreferredDoctor,
		Insurance:       np.Insurance,
	}

	row := make([]string, len(t.header))
	t.fill(row, p)
	t.rows = append(t.rows, row)

	if err := s.save(t); err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkReturning sets is_returning for the patient whether or not it was
// already set.
func (s *CSVStore) MarkReturning(ctx context.Context, id int) error {
	_, err := s.update(id, func(p *Patient) {
		p.IsReturning = true
	})
	return err
}

// UpdateInsurance overwrites the three insurance columns.
func (s *CSVStore) UpdateInsurance(ctx context.Context, id int, ins Insurance) (*Patient, error) {
	return s.update(id, func(p *Patient) {
		p.Insurance = ins
	})
}

func (s *CSVStore) update(id int, mutate func(p *Patient)) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return nil, err
	}
	idx := t.find(id)
	if idx < 0 {
		return nil, ErrPatientNotFound
	}

	p := t.patient(t.rows[idx])
	mutate(&p)
	t.fill(t.rows[idx], p)

	if err := s.save(t); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *CSVStore) load() (*table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newTable(nil, nil), nil
		}
		return nil, fmt.Errorf("open patients: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return newTable(nil, nil), nil
		}
		return nil, fmt.Errorf("read patients header: %w", err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read patients: %w", err)
	}

	return newTable(header, records), nil
}

func (s *CSVStore) save(t *table) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create patients dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".patients-*.csv")
	if err != nil {
		return fmt.Errorf("create patients temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.header); err != nil {
		tmp.Close()
		return fmt.Errorf("write patients header: %w", err)
	}
	if err := w.WriteAll(t.rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write patients: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close patients temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace patients file: %w", err)
	}
	return nil
}

// table is the raw CSV content. Columns this package does not know about
// are kept as-is so a rewrite never drops data.
type table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func newTable(header []string, rows [][]string) *table {
	t := &table{index: make(map[string]int)}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.header = append(t.header, name)
		t.index[name] = i
	}
	for _, col := range Columns {
		if _, ok := t.index[col]; !ok {
			t.index[col] = len(t.header)
			t.header = append(t.header, col)
		}
	}
	for _, r := range rows {
		if len(r) < len(t.header) {
			padded := make([]string, len(t.header))
			copy(padded, r)
			r = padded
		}
		t.rows = append(t.rows, r)
	}
	return t
}

func (t *table) get(row []string, col string) string {
	return strings.TrimSpace(row[t.index[col]])
}

func (t *table) set(row []string, col, value string) {
	row[t.index[col]] = value
}

func (t *table) patient(row []string) Patient {
	id, _ := parseID(t.get(row, colID))
	visits, _ := parseID(t.get(row, colPastVisits))
	return Patient{
		ID:              id,
		FirstName:       t.get(row, colFirstName),
		LastName:        t.get(row, colLastName),
		DOB:             t.get(row, colDOB),
		Email:           t.get(row, colEmail),
		Phone:           t.get(row, colPhone),
		IsReturning:     parseFlag(t.get(row, colIsReturning)),
		PreferredDoctor: t.get(row, colPreferredDoctor),
		Insurance: Insurance{
			Company:     t.get(row, colInsurance),
			MemberID:    t.get(row, colMemberID),
			GroupNumber: t.get(row, colGroupNumber),
		},
		PastVisitsCount: visits,
	}
}

func (t *table) fill(row []string, p Patient) {
	t.set(row, colID, strconv.Itoa(p.ID))
	t.set(row, colFirstName, p.FirstName)
	t.set(row, colLastName, p.LastName)
	t.set(row, colDOB, p.DOB)
	t.set(row, colEmail, p.Email)
	t.set(row, colPhone, p.Phone)
	t.set(row, colIsReturning, strconv.FormatBool(p.IsReturning))
	t.set(row, colPreferredDoctor, p.PreferredDoctor)
	t.set(row, colInsurance, p.Insurance.Company)
	t.set(row, colMemberID, p.Insurance.MemberID)
	t.set(row, colGroupNumber, p.Insurance.GroupNumber)
	t.set(row, colPastVisits, strconv.Itoa(p.PastVisitsCount))
}

func (t *table) patients() []Patient {
	out := make([]Patient, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, t.patient(r))
	}
	return out
}

func (t *table) find(id int) int {
	for i, r := range t.rows {
		if got, ok := parseID(t.get(r, colID)); ok && got == id {
			return i
		}
	}
	return -1
}

// nextID is 1 for an empty table, otherwise the largest id plus one.
func (t *table) nextID() int {
	highest := 0
	for _, r := range t.rows {
		if id, ok := parseID(t.get(r, colID)); ok && id > highest {
			highest = id
		}
	}
	return highest + 1
}

// parseID accepts "7" and spreadsheet style "7.0".
func parseID(v string) (int, bool) {
	if id, err := strconv.Atoi(v); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
