package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-intake-agent/internal/intake"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

const defaultOutboxLimit = 50

func startSessionHandler(conv Conversations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply, err := conv.Start(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	}
}

func getSessionHandler(conv Conversations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := conv.Session(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, intake.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "session_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func postMessageHandler(conv Conversations, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		id := chi.URLParam(r, "id")
		reply, err := conv.Handle(r.Context(), id, req.Text)
		if err != nil {
			if errors.Is(err, intake.ErrSessionBusy) {
				writeError(w, http.StatusConflict, "session_busy", "another message for this session is in progress, please retry")
				return
			}
			logger.Error("message handling failed", "session_id", id, "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func listDoctorsHandler(sched Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := sched.Doctors(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "schedule_unavailable", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, DoctorsResponse{Doctors: doctors})
	}
}

func listSlotsHandler(sched Schedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor := chi.URLParam(r, "doctor")
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			date = time.Now().Format("2006-01-02")
		} else if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := sched.OpenSlots(r.Context(), doctor, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Doctor: doctor, Date: date, Slots: slots})
	}
}

func listAppointmentsHandler(log AppointmentLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := log.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, AppointmentsResponse{Appointments: appts})
	}
}

func listOutboxHandler(outbox Outbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultOutboxLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
				return
			}
			limit = n
		}

		files, err := outbox.List(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, OutboxResponse{Files: files})
	}
}

func listPatientsHandler(patients PatientDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := patients.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, PatientsResponse{Patients: all})
	}
}

// exportFileHandler streams a data file as an attachment. The file is opened
// per request so the download reflects the latest rewrite.
func exportFileHandler(path, name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeError(w, http.StatusNotFound, "file_not_found", name+" has not been created yet")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
