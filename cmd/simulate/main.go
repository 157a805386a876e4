package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-intake-agent/internal/api"
	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/intake"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	ReadRatio   float64
	ReturnRatio float64
	Doctors     []string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	i := n * p / 100
	if i >= n {
		i = n - 1
	}
	return i
}

type Metrics struct {
	Start     OperationMetrics
	Collect   OperationMetrics
	Insurance OperationMetrics
	Pick      OperationMetrics
	ReadSlots OperationMetrics
}

// patientPool remembers who already booked so later conversations can
// come back as returning patients.
type patientPool struct {
	mu    sync.Mutex
	known []string
}

func (p *patientPool) add(intro string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known = append(p.known, intro)
}

func (p *patientPool) random(rng *rand.Rand) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.known) == 0 {
		return "", false
	}
	return p.known[rng.Intn(len(p.known))], true
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	patients patientPool
	metrics  Metrics
	booked   int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: base=%s duration=%s workers=%d read=%.2f returning=%.2f doctors=%v",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.ReadRatio, cfg.ReturnRatio, cfg.Doctors)

	gofakeit.Seed(0)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	if err := sim.CheckNoDoubleBookings(context.Background()); err != nil {
		log.Fatalf("consistency check failed: %v", err)
	}
	log.Println("consistency check passed: no slot was booked twice")
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.2),
		ReturnRatio: getFloat("SIM_RETURNING_RATIO", 0.3),
		Doctors:     strings.Split(getEnv("SIM_DOCTORS", "Dr_Sharma,Dr_Iyer"), ","),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.ReadRatio < 0 || cfg.ReadRatio > 1 {
		return fmt.Errorf("SIM_READ_RATIO must be within [0, 1]")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.ReadRatio {
				s.doReadSlots(ctx, rng)
			} else {
				s.doConversation(ctx, rng)
			}
		}
	}
}

// doConversation walks one session from greeting to a booking, retrying
// the slot pick when another worker got there first.
func (s *Simulator) doConversation(ctx context.Context, rng *rand.Rand) {
	var start intake.Reply
	ok, _ := s.call(ctx, &s.metrics.Start, http.MethodPost, "/sessions", nil, http.StatusCreated, &start)
	if !ok {
		return
	}
	path := "/sessions/" + start.SessionID + "/messages"

	intro, returning := "", false
	if rng.Float64() < s.config.ReturnRatio {
		intro, returning = s.patients.random(rng)
	}
	if !returning {
		doctor := s.config.Doctors[rng.Intn(len(s.config.Doctors))]
		intro = fmt.Sprintf("name=%s %s, dob=%s, doctor=%s",
			gofakeit.FirstName(), gofakeit.LastName(),
			gofakeit.DateRange(time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)).Format("2006-01-02"),
			doctor)
	}

	var reply intake.Reply
	if ok, _ := s.call(ctx, &s.metrics.Collect, http.MethodPost, path, api.MessageRequest{Text: intro}, http.StatusOK, &reply); !ok {
		return
	}

	insurance := fmt.Sprintf("%s, %s, %s", gofakeit.Company(), gofakeit.Numerify("M######"), gofakeit.Numerify("G###"))
	if ok, _ := s.call(ctx, &s.metrics.Insurance, http.MethodPost, path, api.MessageRequest{Text: insurance}, http.StatusOK, &reply); !ok {
		return
	}

	for attempt := 0; attempt < 3 && reply.Stage == intake.StagePickSlot && len(reply.Slots) > 0; attempt++ {
		choice := strconv.Itoa(rng.Intn(len(reply.Slots)))
		slots := reply.Slots

		began := time.Now()
		ok, status := s.send(ctx, http.MethodPost, path, api.MessageRequest{Text: choice}, &reply)
		latency := time.Since(began)

		switch {
		case ok && reply.Stage == intake.StageDone:
			s.metrics.Pick.Record(latency, true, false)
			atomic.AddInt64(&s.booked, 1)
			s.patients.add(intro)
			return
		case ok || status == http.StatusConflict:
			s.metrics.Pick.Record(latency, false, true)
			if len(reply.Slots) == 0 {
				reply.Slots = slots
			}
		default:
			s.metrics.Pick.Record(latency, false, false)
			return
		}
	}
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.config.Doctors[rng.Intn(len(s.config.Doctors))]
	date := time.Now().AddDate(0, 0, rng.Intn(3)).Format("2006-01-02")
	s.call(ctx, &s.metrics.ReadSlots, http.MethodGet, "/doctors/"+doctor+"/slots?date="+date, nil, http.StatusOK, nil)
}

// call sends one request and records it against om.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body any, want int, out any) (bool, int) {
	began := time.Now()
	ok, status := s.send(ctx, method, path, body, out)
	ok = ok && status == want
	om.Record(time.Since(began), ok, status == http.StatusConflict)
	return ok, status
}

func (s *Simulator) send(ctx context.Context, method, path string, body any, out any) (bool, int) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, 0
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return false, 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, resp.StatusCode
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, resp.StatusCode
		}
	}
	return true, resp.StatusCode
}

// CheckNoDoubleBookings reads the appointment log back and fails when two
// appointments share a slot.
func (s *Simulator) CheckNoDoubleBookings(ctx context.Context) error {
	var resp struct {
		Appointments []appointment.Appointment `json:"appointments"`
	}
	if ok, status := s.send(ctx, http.MethodGet, "/appointments", nil, &resp); !ok {
		return fmt.Errorf("list appointments: status %d", status)
	}

	seen := make(map[string]string, len(resp.Appointments))
	for _, a := range resp.Appointments {
		key := a.Doctor + "|" + a.Date + "|" + a.StartTime
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("slot %s booked by both %s and %s", key, prev, a.ID)
		}
		seen[key] = a.ID
	}
	log.Printf("appointment log holds %d appointments, %d booked during this run", len(resp.Appointments), atomic.LoadInt64(&s.booked))
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Bookings: %d\n", atomic.LoadInt64(&s.booked))
	fmt.Println()

	printOperationReport("Start session", &s.metrics.Start)
	printOperationReport("Collect", &s.metrics.Collect)
	printOperationReport("Insurance", &s.metrics.Insurance)
	printOperationReport("Pick slot", &s.metrics.Pick)
	printOperationReport("Read slots", &s.metrics.ReadSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
