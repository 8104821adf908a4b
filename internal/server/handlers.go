package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/builder"
	"github.com/harborline/quotebuilder/pkg/quote"
	"github.com/harborline/quotebuilder/pkg/recovery"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session)

type StatusResponse struct {
	ID      string         `json:"id"`
	State   recovery.State `json:"state"`
	Message string         `json:"message,omitempty"`
}

type SummaryResponse struct {
	StatusResponse
	builder.Summary
}

type MotorRequest struct {
	ID string `json:"id"`
}

type AdvanceRequest struct {
	Step int `json:"step"`
}

type PromoRequest struct {
	Option quote.PromoOption `json:"option"`
}

type RecoverRequest struct {
	Action recovery.Action `json:"action"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Debugf("Writing response: %v", err)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// withSession resolves {id} to an open session. Sessions outlive the
// request that opened them.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		sess, err := s.session(context.WithoutCancel(r.Context()), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		next(w, r, id, sess)
	}
}

func status(id string, sess *builder.Session) StatusResponse {
	st, msg := sess.Status()
	return StatusResponse{ID: id, State: st, Message: msg}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := newID()
	sess, err := s.session(context.WithoutCancel(r.Context()), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.Log.Infof("Opened quote session %s", id)
	writeJSON(w, http.StatusCreated, status(id, sess))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	writeJSON(w, http.StatusOK, SummaryResponse{StatusResponse: status(id, sess), Summary: sess.Summary()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sess := s.drop(id)
	if sess == nil {
		// Not open here, but a stored copy may still exist.
		sess = s.newSession(id)
	}
	err := sess.StartFresh(r.Context())
	if cerr := sess.Close(r.Context()); err == nil {
		err = cerr
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.Log.Infof("Cleared quote session %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	var env quote.Envelope
	if err := decodeBody(r, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := quote.DecodeAction(env)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.Log.Debugf("Session %s: %s", id, a.Kind())
	cfg, err := sess.Apply(a)
	if errors.Is(err, builder.ErrOptionNotOffered) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSelectMotor(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	var req MotorRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := sess.SelectMotor(req.ID)
	if errors.Is(err, builder.ErrUnknownMotor) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	var req AdvanceRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Step < quote.StepMotor || req.Step > quote.StepSummary {
		http.Error(w, "step out of range", http.StatusBadRequest)
		return
	}
	ev, err := sess.Advance(r.Context(), req.Step)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleVisitPromotions(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	writeJSON(w, http.StatusOK, sess.VisitPromotions())
}

func (s *Server) handleChoosePromo(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	var req PromoRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := sess.ChoosePromo(req.Option)
	if errors.Is(err, builder.ErrOptionNotOffered) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	var req RecoverRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err := sess.Recover(context.WithoutCancel(r.Context()), req.Action)
	switch {
	case errors.Is(err, recovery.ErrNotEmergency):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.Log.Infof("Session %s recovered with %s", id, req.Action)
	writeJSON(w, http.StatusOK, status(id, sess))
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request, id string, sess *builder.Session) {
	writeJSON(w, http.StatusOK, sess.PriceAll())
}
