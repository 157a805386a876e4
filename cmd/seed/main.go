package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-intake-agent/internal/config"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
)

var doctors = map[string]string{
	"Dr_Sharma": "Bangalore - Indiranagar",
	"Dr_Iyer":   "Bangalore - Koramangala",
}

var insurers = []string{"Star Health", "HDFC Ergo", "ICICI Lombard", "Niva Bupa", "Care Health"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	patients := getInt("SEED_PATIENTS", 50)
	days := getInt("SEED_DAYS", 7)

	// 0 picks a random seed
	gofakeit.Seed(0)

	if err := seedPatients(context.Background(), cfg.PatientsPath, patients); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedules(cfg.SchedulesPath, time.Now(), days); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, path string, count int) error {
	log.Printf("seeding %d patients into %s", count, path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old patients: %w", err)
	}
	store := patient.NewCSVStore(path)

	minDOB := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDOB := time.Date(2005, 12, 31, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		p, err := store.Register(ctx, patient.NewPatient{
			FirstName:       gofakeit.FirstName(),
			LastName:        gofakeit.LastName(),
			DOB:             gofakeit.DateRange(minDOB, maxDOB).Format("2006-01-02"),
			PreferredDoctor: pick([]string{"Dr_Sharma", "Dr_Iyer"}),
			Insurance: patient.Insurance{
				Company:     pick(insurers),
				MemberID:    gofakeit.Numerify("M########"),
				GroupNumber: gofakeit.Numerify("G####"),
			},
		})
		if err != nil {
			return err
		}
		// about a third of the table has visited before
		if gofakeit.Number(0, 2) == 0 {
			if err := store.MarkReturning(ctx, p.ID); err != nil {
				return err
			}
		}
	}

	log.Println("patients seeded")
	return nil
}

// seedSchedules writes half-hour slots from 09:00 to 17:00, skipping the
// 13:00 lunch hour, for each doctor over the next days. Roughly one slot in
// five starts out booked.
func seedSchedules(path string, from time.Time, days int) error {
	log.Printf("seeding %d days of slots into %s", days, path)

	book := make(map[string][]schedule.Slot, len(doctors))
	for doctor, location := range doctors {
		for d := 0; d < days; d++ {
			date := from.AddDate(0, 0, d).Format("2006-01-02")
			start := time.Date(2000, 1, 1, 9, 0, 0, 0, time.UTC)
			for t := start; t.Hour() < 17; t = t.Add(30 * time.Minute) {
				if t.Hour() == 13 {
					continue
				}
				book[doctor] = append(book[doctor], schedule.Slot{
					Date:      date,
					StartTime: t.Format("15:04"),
					EndTime:   t.Add(30 * time.Minute).Format("15:04"),
					Location:  location,
					Booked:    gofakeit.Number(1, 5) == 1,
				})
			}
		}
	}

	if err := schedule.CreateWorkbook(path, book); err != nil {
		return err
	}
	log.Println("schedules seeded")
	return nil
}

func pick(options []string) string {
	return options[gofakeit.Number(0, len(options)-1)]
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
