package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type categoryInput struct {
	Name  string               `json:"name"`
	Icon  string               `json:"icon"`
	Color string               `json:"color"`
	Type  core.TransactionType `json:"type"`
}

// handleListCategories lists cached categories, optionally filtered by ?type=.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := parseTypeParam(r.URL.Query())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	cats := s.state.Snapshot().Categories
	out := make([]core.Category, 0, len(cats))
	for _, c := range cats {
		if typ == "" || c.Type == typ {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.state.AddCategory(ctx, core.Category{
		Name:  sanitizeInput(in.Name),
		Icon:  sanitizeInput(in.Icon),
		Color: sanitizeInput(in.Color),
		Type:  core.TransactionType(strings.ToLower(string(in.Type))),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Category created",
		log.FieldCategoryID, created.ID, log.FieldType, string(created.Type))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var p core.CategoryPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if v, ok := p.Name.Get(); ok {
		p.Name = core.Some(sanitizeInput(v))
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	id := r.PathValue("id")
	if err := s.state.UpdateCategory(ctx, id, p); err != nil {
		writeError(ctx, w, err)
		return
	}
	if c, ok := s.state.Category(id); ok {
		writeJSON(w, http.StatusOK, c)
		return
	}
	NotFoundError("not found").Write(w)
}

// handleDeleteCategory answers 204 even for default categories, which are
// never removed.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.state.DeleteCategory(ctx, r.PathValue("id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentMethodInput struct {
	Name string                 `json:"name"`
	Type core.PaymentMethodType `json:"type"`
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot().PaymentMethods)
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in paymentMethodInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if in.Type == "" {
		in.Type = core.Custom
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.state.AddPaymentMethod(ctx, core.PaymentMethod{
		Name: sanitizeInput(in.Name),
		Type: in.Type,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Payment method created", "payment_method_id", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var p core.PaymentMethodPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if v, ok := p.Name.Get(); ok {
		p.Name = core.Some(sanitizeInput(v))
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	id := r.PathValue("id")
	if err := s.state.UpdatePaymentMethod(ctx, id, p); err != nil {
		writeError(ctx, w, err)
		return
	}
	if pm, ok := s.state.PaymentMethod(id); ok {
		writeJSON(w, http.StatusOK, pm)
		return
	}
	NotFoundError("not found").Write(w)
}

func (s *Server) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.state.DeletePaymentMethod(ctx, r.PathValue("id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
