package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/currency"
	"fintrack/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady reports whether the database answers and the state is loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.db == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.db.Ping(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if s.state != nil && s.state.Initialized() {
		checks["state"] = map[string]any{"status": "ok", "version": s.state.Version()}
	} else {
		checks["state"] = "not_initialized"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	sec := s.detector.GetMetrics()
	rl := s.rateLimiter.GetMetrics()
	tr := s.tracer.GetMetrics()
	snap := s.state.Snapshot()

	fmt.Fprintf(w, "# HELP fintrack_uptime_seconds Process uptime\n")
	fmt.Fprintf(w, "fintrack_uptime_seconds %d\n", int64(s.now().Sub(s.started).Seconds()))
	fmt.Fprintf(w, "fintrack_http_requests_total %d\n", tr.TotalRequests)
	fmt.Fprintf(w, "fintrack_http_response_time_avg_ms %d\n", tr.AverageResponseTime)
	fmt.Fprintf(w, "fintrack_rate_limit_rejected_total %d\n", rl.Rejected)
	fmt.Fprintf(w, "fintrack_rate_limit_clients %d\n", rl.ClientCount)
	fmt.Fprintf(w, "fintrack_security_suspicious_total %d\n", sec.SuspiciousRequests)
	fmt.Fprintf(w, "fintrack_security_blocked_total %d\n", sec.BlockedRequests)
	fmt.Fprintf(w, "fintrack_state_version %d\n", snap.Version)
	fmt.Fprintf(w, "fintrack_state_transactions %d\n", len(snap.Transactions))
	fmt.Fprintf(w, "fintrack_state_recurring %d\n", len(snap.RecurringTransactions))
	fmt.Fprintf(w, "fintrack_cache_entries{cache=\"monthly\"} %d\n", s.monthlyCache.Size())
	fmt.Fprintf(w, "fintrack_cache_entries{cache=\"categories\"} %d\n", s.categoryCache.Size())
	fmt.Fprintf(w, "fintrack_cache_entries{cache=\"trend\"} %d\n", s.trendCache.Size())
}

// handleState returns the whole cached state in one document.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

type currencyInfo struct {
	Code   currency.Code   `json:"code"`
	Symbol string          `json:"symbol"`
	Rate   decimal.Decimal `json:"rate"`
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	codes := currency.Codes()
	out := make([]currencyInfo, 0, len(codes))
	for _, c := range codes {
		sym, _ := currency.Symbol(c)
		rate, _ := currency.Rate(c)
		out = append(out, currencyInfo{Code: c, Symbol: sym, Rate: rate})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reference":  currency.Reference,
		"currencies": out,
	})
}

type settingsBody struct {
	PrimaryCurrency string `json:"primaryCurrency"`
}

func (s *Server) settingsResponse() map[string]any {
	primary := s.state.PrimaryCurrency()
	sym, _ := currency.Symbol(primary)
	return map[string]any{
		"primaryCurrency": primary,
		"symbol":          sym,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleUpdateSettings changes the primary currency. Converted amounts of
// existing transactions keep the value they were written with.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	code, err := currency.Parse(body.PrimaryCurrency)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.state.SetPrimaryCurrency(ctx, code); err != nil {
		writeError(ctx, w, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Settings updated", log.FieldCurrency, string(code))
	writeJSON(w, http.StatusOK, s.settingsResponse())
}
