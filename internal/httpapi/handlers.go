package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/session"
)

type acceptRequest struct {
	DoctorID string `json:"doctor_id"`
}

type pendingResponse struct {
	OrchardID string `json:"orchard_id"`
	PendingRx int    `json:"pending_rx"`
}

func (s *Server) listDoctors(w http.ResponseWriter, _ *http.Request) {
	if s.directory == nil {
		writeJSON(w, http.StatusOK, envelope{Data: []any{}})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: s.directory.List()})
}

func (s *Server) getOrchard(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	writeResult(w, http.StatusOK, sess.Snapshot(), sess.ReloadErr())
}

func (s *Server) listConsultations(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	writeResult(w, http.StatusOK, sess.Consultations(), sess.ReloadErr())
}

func (s *Server) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	writeResult(w, http.StatusOK, sess.AllPrescriptions(), sess.ReloadErr())
}

func (s *Server) pendingCount(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	writeResult(w, http.StatusOK, pendingResponse{OrchardID: sess.OrchardID(), PendingRx: sess.PendingRxCount()}, sess.ReloadErr())
}

func (s *Server) doctorQueue(w http.ResponseWriter, r *http.Request) {
	sess := s.readSession(r)
	writeResult(w, http.StatusOK, sess.DoctorQueue(chi.URLParam(r, "doctorID")), sess.ReloadErr())
}

func (s *Server) requestConsultation(w http.ResponseWriter, r *http.Request) {
	var in engine.RequestInput
	if err := decode(r, &in); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	c, err := sess.RequestConsultation(r.Context(), in)
	writeResult(w, http.StatusCreated, c, err)
}

func (s *Server) acceptRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "consultationID")
	if !ok {
		return
	}
	var in acceptRequest
	if err := decode(r, &in); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	c, err := sess.AcceptRequest(r.Context(), id, in.DoctorID)
	writeResult(w, http.StatusOK, c, err)
}

func (s *Server) issuePrescription(w http.ResponseWriter, r *http.Request) {
	var in engine.IssueInput
	if err := decode(r, &in); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if !s.validID(w, in.ConsultationID) {
		return
	}
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	res, err := sess.IssuePrescription(r.Context(), in)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *Server) executePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "prescriptionID")
	if !ok {
		return
	}
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	res, err := sess.ExecutePrescription(r.Context(), id)
	if err == nil && res.ExpenseErr != nil {
		s.logger.WarnContext(r.Context(), "expense recording failed", "prescription_id", id, "error", res.ExpenseErr)
	}
	writeResult(w, http.StatusOK, res, err)
}

func (s *Server) flagCorrection(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "prescriptionID")
	if !ok {
		return
	}
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	p, err := sess.FlagCorrection(r.Context(), id)
	writeResult(w, http.StatusOK, p, err)
}

// readSession returns the orchard's session after a fresh reload.
func (s *Server) readSession(r *http.Request) *session.Session {
	sess := s.session(r.Context(), chi.URLParam(r, "orchardID"))
	_ = sess.Reload(r.Context())
	return sess
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := chi.URLParam(r, param)
	return id, s.validID(w, id)
}

func (s *Server) validID(w http.ResponseWriter, id string) bool {
	if !s.uuidIDs {
		return true
	}
	if _, err := uuid.Parse(id); err != nil {
		writeBadRequest(w, "id must be a UUID: "+id)
		return false
	}
	return true
}
