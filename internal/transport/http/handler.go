package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

// Handler exposes the contest engine over REST.
type Handler struct {
	service   *app.ContestService
	identity  IdentityResolver
	registrar UserRegistrar // optional
}

func NewHandler(service *app.ContestService, identity IdentityResolver, registrar UserRegistrar) *Handler {
	return &Handler{service: service, identity: identity, registrar: registrar}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /contests", h.listContests)
	mux.HandleFunc("GET /contests/{id}", h.getContest)
	mux.HandleFunc("POST /contests/{id}/join", h.join)
	mux.HandleFunc("POST /contests/{id}/submit", h.submit)
	mux.HandleFunc("GET /contests/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /me/contests/history", h.history)
	mux.HandleFunc("GET /me/contests/in-progress", h.inProgress)
	mux.HandleFunc("GET /me/prizes", h.prizes)
}

func (h *Handler) user(r *http.Request) (*domain.User, error) {
	user, err := h.identity.Resolve(r)
	if err != nil {
		return nil, err
	}
	if user != nil && h.registrar != nil {
		h.registrar.Register(*user)
	}
	return user, nil
}

func (h *Handler) listContests(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contests, err := h.service.ListContests(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contests)
}

func (h *Handler) getContest(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contest, err := h.service.GetContest(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contest)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	participation, err := h.service.Join(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participation)
}

type submitRequest struct {
	Answers []answerEntry `json:"answers"`
}

// answerEntry tolerates the historical payload shapes: the submitted value
// may arrive under value, answer, values, or answers. The first present
// key wins, in that order.
type answerEntry struct {
	QuestionID any  `json:"questionId"`
	Value      *any `json:"value"`
	Answer     *any `json:"answer"`
	Values     *any `json:"values"`
	Answers    *any `json:"answers"`
}

func (e answerEntry) rawAnswer() domain.RawAnswer {
	var value any
	switch {
	case e.Value != nil:
		value = *e.Value
	case e.Answer != nil:
		value = *e.Answer
	case e.Values != nil:
		value = *e.Values
	case e.Answers != nil:
		value = *e.Answers
	}
	return domain.RawAnswer{QuestionID: idString(e.QuestionID), Value: value}
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidAnswers)
		return
	}
	answers := make([]domain.RawAnswer, 0, len(req.Answers))
	for _, entry := range req.Answers {
		raw := entry.rawAnswer()
		if raw.QuestionID == "" {
			continue
		}
		answers = append(answers, raw)
	}
	participation, err := h.service.Submit(r.Context(), r.PathValue("id"), user, answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participation)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.service.History)
}

func (h *Handler) inProgress(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.service.InProgress)
}

func (h *Handler) prizes(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.service.Prizes)
}

func (h *Handler) userList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, user *domain.User) ([]domain.Participation, error)) {
	user, err := h.user(r)
	if err != nil {
		writeError(w, err)
		return
	}
	participations, err := list(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participations)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrContestNotFound):
		status, code = http.StatusNotFound, "contest_not_found"
	case errors.Is(err, domain.ErrParticipationNotFound):
		status, code = http.StatusBadRequest, "not_joined"
	case errors.Is(err, domain.ErrInvalidAnswers):
		status, code = http.StatusBadRequest, "invalid_answers"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		status, code = http.StatusConflict, "already_completed"
	case errors.Is(err, domain.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, domain.ErrContestNotOpen):
		status, code = http.StatusConflict, "contest_not_open"
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSON(w, status, errorResponse{Code: code, Message: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
