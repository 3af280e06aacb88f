package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/stats"
	"fintrack/internal/storage"
)

const (
	defaultTrendMonths = 6
	maxTrendMonths     = 24
)

// Statistics are computed from the cached transaction window and memoized
// per state version, so any write invalidates them.

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	snap := s.state.Snapshot()
	key := cache.Key(snap.Version, "monthly", strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month)))
	out, _ := cache.GetOrLoad[stats.MonthlyStats](s.monthlyCache, key, func() (stats.MonthlyStats, error) {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Monthly stats cache miss", log.FieldVersion, snap.Version)
		return stats.Monthly(snap.Transactions, mp.Year, mp.Month, nil), nil
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"currency": snap.PrimaryCurrency,
		"stats":    out,
	})
}

// handleCategoryStats groups by category; ?type= defaults to expense and the
// month window applies only when year or month is given.
func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, err := parseTypeParam(q)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if typ == "" {
		typ = core.Expense
	}

	var period *stats.Period
	scope := "all"
	if q.Has("year") || q.Has("month") {
		mp, err := ParseMonthParams(q, s.now())
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		period = &stats.Period{Year: mp.Year, Month: mp.Month}
		scope = fmt.Sprintf("%04d-%02d", mp.Year, mp.Month)
	}

	snap := s.state.Snapshot()
	key := cache.Key(snap.Version, "categories", string(typ), scope)
	out, _ := cache.GetOrLoad[[]stats.CategoryStat](s.categoryCache, key, func() ([]stats.CategoryStat, error) {
		res := stats.ByCategory(snap.Transactions, typ, period)
		if res == nil {
			res = []stats.CategoryStat{}
		}
		return res, nil
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"currency":   snap.PrimaryCurrency,
		"type":       typ,
		"categories": out,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()
	income, err := s.transactions.TotalByType(ctx, core.Income, nil)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	expenses, err := s.transactions.TotalByType(ctx, core.Expense, nil)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	ledger := income.Sub(expenses)

	snap := s.state.Snapshot()
	balance := stats.Balance(snap.Transactions)
	writeJSON(w, http.StatusOK, map[string]any{
		"currency":        snap.PrimaryCurrency,
		"balance":         balance,
		"formatted":       currency.Format(balance, snap.PrimaryCurrency),
		"ledgerBalance":   ledger,
		"ledgerFormatted": currency.Format(ledger, snap.PrimaryCurrency),
	})
}

// handleTrend returns ?months= (default 6) monthly totals ending at the
// given or current month.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mp, err := ParseMonthParams(q, s.now())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	n, err := parseIntParam(q, "months", defaultTrendMonths, maxTrendMonths)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	snap := s.state.Snapshot()
	key := cache.Key(snap.Version, "trend", strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month)), strconv.Itoa(n))
	out, _ := cache.GetOrLoad[[]stats.TrendPoint](s.trendCache, key, func() ([]stats.TrendPoint, error) {
		return stats.Trend(snap.Transactions, mp.Year, mp.Month, n, nil), nil
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"currency": snap.PrimaryCurrency,
		"points":   out,
	})
}

// handleExport renders the full ledger, not just the cached window, as CSV
// or XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	txns, err := s.exportTransactions(ctx, r.URL.Query())
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, txns); err != nil {
		writeError(ctx, w, err)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Transactions exported",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(txns),
		"format", string(format))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(s.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// exportTransactions reads the full ledger from the store, narrowed by the
// optional ?type= and ?year=&month= filters.
func (s *Server) exportTransactions(ctx context.Context, q url.Values) ([]core.TransactionWithDetails, error) {
	typ, err := parseTypeParam(q)
	if err != nil {
		return nil, err
	}
	if !q.Has("year") && !q.Has("month") {
		if typ == "" {
			return s.transactions.ListWithDetails(ctx, 0)
		}
		rows, err := s.transactions.ListByType(ctx, typ, 0)
		if err != nil {
			return nil, err
		}
		return s.withDetails(rows), nil
	}

	mp, err := ParseMonthParams(q, s.now())
	if err != nil {
		return nil, err
	}
	start, end := stats.Period{Year: mp.Year, Month: mp.Month}.Range()
	rows, err := s.transactions.ListByDateRange(ctx, storage.DateRange{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	if typ != "" {
		rows = slices.DeleteFunc(rows, func(t core.Transaction) bool { return t.Type != typ })
	}
	return s.withDetails(rows), nil
}

// withDetails joins category and payment method from the cached reference
// data, which always holds every row.
func (s *Server) withDetails(rows []core.Transaction) []core.TransactionWithDetails {
	snap := s.state.Snapshot()
	cats := make(map[string]core.Category, len(snap.Categories))
	for _, c := range snap.Categories {
		cats[c.ID] = c
	}
	pms := make(map[string]core.PaymentMethod, len(snap.PaymentMethods))
	for _, pm := range snap.PaymentMethods {
		pms[pm.ID] = pm
	}
	out := make([]core.TransactionWithDetails, 0, len(rows))
	for _, t := range rows {
		out = append(out, core.TransactionWithDetails{
			Transaction:   t,
			Category:      cats[t.CategoryID],
			PaymentMethod: pms[t.PaymentMethodID],
		})
	}
	return out
}
