package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

const ledgerPartial = "ledger"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) ledgerView() ledgerView {
	snap := s.ledger.Snapshot()
	return buildLedgerView(s.currency, snap.Records, snap.IsEditing, snap.Total)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Currency string
		Ledger   ledgerView
	}{
		Currency: s.currency,
		Ledger:   s.ledgerView(),
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Index template execution failed",
			log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Could not render the page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLedgerPartial(w http.ResponseWriter, r *http.Request) {
	s.respondLedger(w, r, NewHTMXResponse())
}

// respondLedger renders the list+total partial into b and writes it.
func (s *Server) respondLedger(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder) {
	view := s.ledgerView()

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, ledgerPartial, view); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger template execution failed",
			log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Could not render the ledger").Write(w)
		return
	}
	b.TriggerLedgerChanged(view.Count, view.RawTotal).BodyHTML(buf.Bytes()).Write(w)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	rec, err := s.ledger.Add(r.Context(), p.Get("amount"), p.GetAny("description", "item"))
	switch {
	case errors.Is(err, ledger.ErrEmptyInput):
		// nothing to add; leave the page as it is
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, ledger.ErrInvalidAmount):
		UnprocessableEntityError("Amount must be a number").Write(w)
		return
	case err != nil:
		s.storageFailure(w, r, log.OpAdd, err)
		return
	}

	if wantsJSON(r, p) {
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	s.respondLedger(w, r, NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification("Added "+rec.Description))
}

func (s *Server) handleToggleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		NotFoundError("Unknown expense").Write(w)
		return
	}
	s.ledger.ToggleEdit(id)
	s.respondLedger(w, r, NewHTMXResponse())
}

func (s *Server) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		NotFoundError("Unknown expense").Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	rec, err := s.ledger.SaveEdit(r.Context(), id, p.Get("amount"), p.GetAny("description", "item"))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		NotFoundError("Unknown expense").Write(w)
		return
	case errors.Is(err, ledger.ErrInvalidAmount):
		UnprocessableEntityError("Amount must be a number").Write(w)
		return
	case err != nil:
		s.storageFailure(w, r, log.OpSaveEdit, err)
		return
	}

	if wantsJSON(r, p) {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	s.respondLedger(w, r, NewHTMXResponse())
}

// handleDelete removes one record. Unknown ids are not an error: the
// current list is rendered unchanged.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		NotFoundError("Unknown expense").Write(w)
		return
	}
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		s.storageFailure(w, r, log.OpDelete, err)
		return
	}
	if wantsJSON(r, nil) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondLedger(w, r, NewHTMXResponse())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ClearAll(r.Context()); err != nil {
		s.storageFailure(w, r, log.OpClear, err)
		return
	}
	if wantsJSON(r, nil) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondLedger(w, r, NewHTMXResponse().TriggerNotification(NotificationInfo, "Ledger cleared", 3000))
}

type listResponse struct {
	Expenses []core.Record `json:"expenses"`
	Count    int           `json:"count"`
	Total    core.Money    `json:"total"`
}

type totalResponse struct {
	Total     core.Money `json:"total"`
	Formatted string     `json:"formatted"`
	Count     int        `json:"count"`
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, listResponse{
		Expenses: snap.Records,
		Count:    len(snap.Records),
		Total:    snap.Total,
	})
}

func (s *Server) handleAPITotal(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, totalResponse{
		Total:     snap.Total,
		Formatted: core.FormatCurrency(s.currency, snap.Total),
		Count:     len(snap.Records),
	})
}

func (s *Server) storageFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger mutation failed",
		log.FieldOperation, op, log.FieldError, err)
	InternalServerError("Could not save the ledger, try again").Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
