package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/service"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type MedicationResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Dose           float64  `json:"dose"`
	Unit           string   `json:"unit"`
	Dosage         string   `json:"dosage"`
	Frequency      string   `json:"frequency"`
	FrequencyLabel string   `json:"frequency_label"`
	Instructions   string   `json:"instructions,omitempty"`
	Occurrences    []string `json:"occurrences"`
	Active         bool     `json:"active"`
	Legacy         bool     `json:"legacy"`
}

type TodayResponse struct {
	Medication MedicationResponse `json:"medication"`
	Today      []string           `json:"today"`
	Next       *string            `json:"next,omitempty"`
	AllTaken   bool               `json:"all_taken"`
}

type SaveResponse struct {
	Medication         MedicationResponse `json:"medication"`
	RemindersScheduled bool               `json:"reminders_scheduled"`
	Notifications      int                `json:"notifications"`
	NotifyError        string             `json:"notify_error,omitempty"`
}

type TakeResponse struct {
	Decision    string              `json:"decision"`
	Message     string              `json:"message"`
	Medication  *MedicationResponse `json:"medication,omitempty"`
	Next        *string             `json:"next,omitempty"`
	NextIsToday bool                `json:"next_is_today"`
	NotifyError string              `json:"notify_error,omitempty"`
}

type PostponeResponse struct {
	Medication  MedicationResponse `json:"medication"`
	From        string             `json:"from"`
	To          string             `json:"to"`
	NotifyError string             `json:"notify_error,omitempty"`
}

type PolicyResponse struct {
	RemindersEnabled bool `json:"reminders_enabled"`
	AdvanceMinutes   int  `json:"advance_minutes"`
}

type RescheduleResponse struct {
	Policy        PolicyResponse `json:"policy"`
	Medications   int            `json:"medications"`
	Notifications int            `json:"notifications"`
	Failed        []string       `json:"failed,omitempty"`
}

type DoseEventResponse struct {
	ID           string `json:"id"`
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	TakenAt      string `json:"taken_at"`
}

type NotificationResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Time         string `json:"time"`
	MedicationID string `json:"medication_id"`
	Occurrence   string `json:"occurrence"`
	Title        string `json:"title"`
	Body         string `json:"body"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) jsonCreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// fail maps the error taxonomy onto a status code. Internal failures are
// logged and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Stack().Err(err).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		s.jsonError(w, "internal error", status)
		return
	}
	s.jsonError(w, err.Error(), status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIncompleteDoseData):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Server) instant(t time.Time) string {
	return t.In(s.location).Format(time.RFC3339)
}

func (s *Server) instants(list []time.Time) []string {
	out := make([]string, 0, len(list))
	for _, t := range domain.SortedOccurrences(list) {
		out = append(out, s.instant(t))
	}
	return out
}

func (s *Server) medicationToResponse(m *domain.Medication) MedicationResponse {
	return MedicationResponse{
		ID:             m.ID,
		Name:           m.Name,
		Dose:           m.DoseAmount,
		Unit:           m.DoseUnit,
		Dosage:         m.Dosage(),
		Frequency:      string(m.Frequency),
		FrequencyLabel: m.Frequency.Label(),
		Instructions:   m.Instructions,
		Occurrences:    s.instants(m.Occurrences),
		Active:         m.Active,
		Legacy:         m.IsLegacy(),
	}
}

func (s *Server) medicationsToResponse(meds []*domain.Medication) []MedicationResponse {
	out := make([]MedicationResponse, 0, len(meds))
	for _, m := range meds {
		out = append(out, s.medicationToResponse(m))
	}
	return out
}

func (s *Server) saveToResponse(r service.SaveResult) SaveResponse {
	return SaveResponse{
		Medication:         s.medicationToResponse(r.Medication),
		RemindersScheduled: r.RemindersScheduled,
		Notifications:      r.Notifications,
		NotifyError:        errorText(r.NotifyErr),
	}
}

func (s *Server) takeToResponse(r service.TakeResult) TakeResponse {
	resp := TakeResponse{
		Decision:    r.Decision.String(),
		Message:     service.ConfirmationMessage(r),
		NextIsToday: r.NextIsToday,
		NotifyError: errorText(r.NotifyErr),
	}
	if r.Medication != nil {
		m := s.medicationToResponse(r.Medication)
		resp.Medication = &m
	}
	if r.HasNext {
		next := s.instant(r.Next)
		resp.Next = &next
	}
	return resp
}

func policyToResponse(p domain.ReminderPolicy) PolicyResponse {
	return PolicyResponse{RemindersEnabled: p.RemindersEnabled, AdvanceMinutes: p.AdvanceMinutes}
}
