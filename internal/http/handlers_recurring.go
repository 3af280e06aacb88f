package http

import (
	"net/http"
	"slices"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// handleListRecurring lists templates ordered by day of month; ?active=true
// keeps only active ones.
func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	items := s.state.Snapshot().RecurringTransactions
	if r.URL.Query().Get("active") == "true" {
		items = slices.DeleteFunc(items, func(rt core.RecurringTransaction) bool { return !rt.IsActive })
	}
	if items == nil {
		items = []core.RecurringTransaction{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var in services.RecurringInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	in.Description = sanitizeInput(in.Description)

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.ledger.ScheduleRecurring(ctx, in)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	var p core.RecurringPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if v, ok := p.Description.Get(); ok {
		p.Description = core.Some(sanitizeInput(v))
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	id := r.PathValue("id")
	if err := s.ledger.EditRecurring(ctx, id, p); err != nil {
		writeError(ctx, w, err)
		return
	}
	rt, ok := s.state.RecurringTransaction(id)
	if !ok {
		NotFoundError("not found").Write(w)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.state.DeleteRecurringTransaction(ctx, r.PathValue("id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProcessRecurring materializes every template due now, the same pass
// the scheduler runs periodically.
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		ErrorResponse(http.StatusServiceUnavailable, "recurring processing is not configured").Write(w)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.processor.ProcessDue(ctx, s.now())
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Recurring processing failed",
			log.FieldCount, created, log.FieldError, err)
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}
