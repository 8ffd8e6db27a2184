package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/service"
)

const defaultHistoryDays = 7

type medicationRequest struct {
	Name         string   `json:"name"`
	Dose         float64  `json:"dose"`
	Unit         string   `json:"unit"`
	Frequency    string   `json:"frequency"`
	Instructions string   `json:"instructions"`
	Times        []string `json:"times"`
}

func (req medicationRequest) input() domain.MedicationInput {
	return domain.MedicationInput{
		Name:         req.Name,
		DoseAmount:   req.Dose,
		DoseUnit:     req.Unit,
		Frequency:    domain.ParseFrequencyInput(req.Frequency),
		Instructions: req.Instructions,
		Times:        req.Times,
	}
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// GET /api/today - medications due today, pending first
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	entries, err := s.meds.Today(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]TodayResponse, 0, len(entries))
	for _, e := range entries {
		item := TodayResponse{
			Medication: s.medicationToResponse(e.Medication),
			Today:      s.instants(e.Today),
			AllTaken:   e.AllTaken,
		}
		if e.HasNext {
			next := s.instant(e.Next)
			item.Next = &next
		}
		out = append(out, item)
	}
	s.jsonResponse(w, out)
}

// GET /api/medications
func (s *Server) handleListMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := s.meds.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, s.medicationsToResponse(meds))
}

// POST /api/medications
func (s *Server) handleCreateMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.meds.Register(r.Context(), userID(r), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonCreated(w, s.saveToResponse(result))
}

// PUT /api/medications/{id}
func (s *Server) handleUpdateMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.meds.Update(r.Context(), userID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, s.saveToResponse(result))
}

// DELETE /api/medications/{id} - soft delete
func (s *Server) handleDeleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := s.meds.Deactivate(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]bool{"deactivated": true})
}

// POST /api/medications/{id}/take
func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Occurrence time.Time `json:"occurrence"`
		Confirmed  *bool     `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	confirmed := req.Confirmed == nil || *req.Confirmed

	result, err := s.doses.Take(r.Context(), service.TakeRequest{
		UserID:       userID(r),
		MedicationID: chi.URLParam(r, "id"),
		Occurrence:   req.Occurrence,
		Confirmed:    confirmed,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, s.takeToResponse(result))
}

// POST /api/medications/{id}/next - explicit next dose of a custom medication
func (s *Server) handleCustomNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.doses.SetCustomNext(r.Context(), service.CustomNextRequest{
		UserID:       userID(r),
		MedicationID: chi.URLParam(r, "id"),
		Date:         req.Date,
		Time:         req.Time,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, s.takeToResponse(result))
}

// GET /api/postpone-options
func (s *Server) handlePostponeOptions(w http.ResponseWriter, r *http.Request) {
	options := s.doses.PostponeOptions()
	out := make([]string, 0, len(options))
	for _, c := range options {
		out = append(out, c.String())
	}
	s.jsonResponse(w, out)
}

// POST /api/medications/{id}/postpone
func (s *Server) handlePostpone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Occurrence time.Time `json:"occurrence"`
		Time       string    `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.doses.Postpone(r.Context(), service.PostponeRequest{
		UserID:       userID(r),
		MedicationID: chi.URLParam(r, "id"),
		Occurrence:   req.Occurrence,
		Clock:        req.Time,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, PostponeResponse{
		Medication:  s.medicationToResponse(result.Medication),
		From:        s.instant(result.From),
		To:          s.instant(result.To),
		NotifyError: errorText(result.NotifyErr),
	})
}

// GET /api/reminders
func (s *Server) handleGetReminders(w http.ResponseWriter, r *http.Request) {
	policy, err := s.policies.Load(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, policyToResponse(policy))
}

// PUT /api/reminders - saves the policy and reschedules the user
func (s *Server) handlePutReminders(w http.ResponseWriter, r *http.Request) {
	current, err := s.policies.Load(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req struct {
		RemindersEnabled *bool `json:"reminders_enabled"`
		AdvanceMinutes   *int  `json:"advance_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	enabled, advance := current.RemindersEnabled, current.AdvanceMinutes
	if req.RemindersEnabled != nil {
		enabled = *req.RemindersEnabled
	}
	if req.AdvanceMinutes != nil {
		advance = *req.AdvanceMinutes
	}

	policy, report, err := s.policies.Save(r.Context(), userID(r), enabled, advance)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, RescheduleResponse{
		Policy:        policyToResponse(policy),
		Medications:   report.Medications,
		Notifications: report.Notifications,
		Failed:        report.Failed,
	})
}

// GET /api/history?days=N or ?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		events []*domain.DoseEvent
		err    error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, ferr := time.ParseInLocation("2006-01-02", q.Get("from"), s.location)
		to, terr := time.ParseInLocation("2006-01-02", q.Get("to"), s.location)
		if ferr != nil || terr != nil {
			s.jsonError(w, "Invalid date format (use YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		events, err = s.doses.History(r.Context(), userID(r), from, domain.EndOfDay(to))
	} else {
		days := defaultHistoryDays
		if v := q.Get("days"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil || n < 1 {
				s.jsonError(w, "days must be a positive number", http.StatusBadRequest)
				return
			}
			days = n
		}
		events, err = s.doses.RecentHistory(r.Context(), userID(r), days)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]DoseEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, DoseEventResponse{
			ID:           e.ID,
			MedicationID: e.MedicationID,
			Name:         e.MedicationName,
			TakenAt:      s.instant(e.TakenAt),
		})
	}
	s.jsonResponse(w, out)
}

// GET /api/calendar.ics
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	data, err := s.calendar.Feed(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="doses.ics"`)
	w.Write(data)
}

// GET /api/notifications - the user's armed triggers
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.planner.Notifications(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, NotificationResponse{
			ID:           n.ID(),
			Kind:         string(n.Key.Kind),
			Time:         n.Clock().String(),
			MedicationID: n.Key.MedicationID,
			Occurrence:   s.instant(n.Payload.Occurrence),
			Title:        n.Payload.Title,
			Body:         n.Payload.Body,
		})
	}
	s.jsonResponse(w, out)
}
