package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/services"
	"fintrack/internal/stats"
)

const maxListLimit = 1000

// transactionList is the list response: the matching page plus the net
// total (income minus expenses, converted) of every match before ?limit.
type transactionList struct {
	Currency     currency.Code                 `json:"currency"`
	Transactions []core.TransactionWithDetails `json:"transactions"`
	Count        int                           `json:"count"`
	NetTotal     decimal.Decimal               `json:"netTotal"`
	Formatted    string                        `json:"formatted"`
}

// handleListTransactions serves the cached recent transactions, newest
// first. Optional filters: ?type=, ?year=&month=, ?q= (free-text search),
// ?limit=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, err := parseTypeParam(q)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	limit, err := parseIntParam(q, "limit", maxListLimit, maxListLimit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	var period *stats.Period
	if q.Has("year") || q.Has("month") {
		mp, err := ParseMonthParams(q, s.now())
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		period = &stats.Period{Year: mp.Year, Month: mp.Month}
	}
	search := sanitizeInput(q.Get("q"))

	snap := s.state.Snapshot()
	matches := make([]core.TransactionWithDetails, 0)
	for _, t := range snap.Transactions {
		if typ != "" && t.Type != typ {
			continue
		}
		if period != nil {
			start, end := period.Range()
			if t.Date.Before(start) || t.Date.After(end) {
				continue
			}
		}
		if !stats.Matches(t, search) {
			continue
		}
		matches = append(matches, t)
	}

	net := stats.Balance(matches)
	writeJSON(w, http.StatusOK, transactionList{
		Currency:     snap.PrimaryCurrency,
		Transactions: matches[:min(limit, len(matches))],
		Count:        len(matches),
		NetTotal:     net,
		Formatted:    currency.Format(net, snap.PrimaryCurrency),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	t, err := s.transactions.GetWithDetails(ctx, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	in.Description = sanitizeInput(in.Description)

	ctx, cancel := s.requestContext(r)
	defer cancel()
	created, err := s.ledger.RecordTransaction(ctx, in)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+created.ID).
		Data(created).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var p core.TransactionPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if v, ok := p.Description.Get(); ok {
		p.Description = core.Some(sanitizeInput(v))
	}
	// convertedAmount is always derived from amount and currency.
	p.ConvertedAmount = core.Optional[decimal.Decimal]{}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	id := r.PathValue("id")
	if err := s.ledger.EditTransaction(ctx, id, p); err != nil {
		writeError(ctx, w, err)
		return
	}
	t, err := s.transactions.GetWithDetails(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.ledger.RemoveTransaction(ctx, r.PathValue("id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
