package apifront

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/goldrouter/internal/portfolio"
	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

func routeVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// handleHealth is GET /health (spec §4.5: "200 healthy/degraded, 503
// offline").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]ComponentHealth)
	overall := venue.StatusHealthy

	for _, c := range s.registry.List() {
		components[c.VenueID] = ComponentHealth{Status: string(c.Status)}
		overall = worseOf(overall, c.Status)
	}

	resp := HealthResponse{Status: string(overall), Components: components, Timestamp: time.Now().UTC()}

	status := http.StatusOK
	if overall == venue.StatusOffline {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func worseOf(a, b venue.Status) venue.Status {
	rank := map[venue.Status]int{venue.StatusHealthy: 0, venue.StatusDegraded: 1, venue.StatusOffline: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// handlePortfolio is GET /portfolio[?refresh=true] (spec §4.5).
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	var snap portfolio.Snapshot
	if forceRefresh {
		snap = s.aggregator.Refresh(r.Context())
	} else if latest, ok := s.aggregator.Latest(); ok {
		snap = latest
	} else {
		snap = s.aggregator.Refresh(r.Context())
	}

	s.writeJSON(w, http.StatusOK, flattenSnapshot(snap))
}

func flattenSnapshot(snap portfolio.Snapshot) PortfolioResponse {
	holdings := make([]PortfolioHoldingRecord, 0, len(snap.Holdings))
	for _, h := range snap.Holdings {
		holdings = append(holdings, PortfolioHoldingRecord{
			VenueID:    h.VenueID,
			Symbol:     h.Symbol,
			Native:     h.Native.String(),
			Grams:      h.Grams.String(),
			Available:  h.Available,
			UnknownSym: h.UnknownSym,
			LastSeen:   h.LastSeen,
		})
	}
	return PortfolioResponse{
		TotalGrams: snap.TotalGrams.String(),
		Status:     string(snap.Status),
		BuiltAt:    snap.BuiltAt,
		Holdings:   holdings,
	}
}

// handleConnectors is GET /connectors (spec §4.5).
func (s *Server) handleConnectors(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	out := make([]ConnectorRecord, 0, len(list))
	for _, c := range list {
		out = append(out, ConnectorRecord{
			VenueID:      c.VenueID,
			Kind:         string(c.Kind),
			Status:       string(c.Status),
			BreakerState: c.BreakerState,
			ErrorRate:    c.ErrorRate,
			LatencyMs:    c.LatencyMs,
		})
	}
	s.writeJSON(w, http.StatusOK, ConnectorsResponse{Connectors: out})
}

// handleAuditLogs is GET /audit/logs?startDate&endDate (spec §4.5).
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if v := r.URL.Query().Get("startDate"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "startDate must be RFC3339", err.Error())
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "endDate must be RFC3339", err.Error())
			return
		}
		to = parsed
	}

	records := s.journal.Export(from, to)
	out := make([]AuditRecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, AuditRecordView{
			Seq:        rec.Seq,
			Kind:       string(rec.Kind),
			Timestamp:  rec.Timestamp,
			VenueID:    rec.VenueID,
			Subject:    rec.Subject,
			Details:    rec.Details,
			PrevHash:   rec.PrevHash,
			RecordHash: rec.RecordHash,
		})
	}
	s.writeJSON(w, http.StatusOK, AuditLogsResponse{Records: out})
}

// handleMetrics is GET /metrics (spec §4.5 "count, avg latency, error
// rate, uptime"); raw Prometheus exposition lives at /prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.Summary())
}

// handleRegisterVenue is POST /admin/venues (SPEC_FULL.md §9).
func (s *Server) handleRegisterVenue(w http.ResponseWriter, r *http.Request) {
	var req RegisterVenueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "malformed request body", err.Error())
		return
	}
	if req.VenueID == "" {
		s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "venueId is required", "")
		return
	}
	kind := venue.Kind(req.Kind)
	if kind != venue.KindExchange && kind != venue.KindOnchain {
		s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "kind must be exchange or onchain", "")
		return
	}
	if err := s.registry.RegisterVenue(r.Context(), req.VenueID, kind); err != nil {
		s.writeErrorFromErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"venueId": req.VenueID, "status": "registered"})
}

// handleDisableVenue is POST /admin/venues/{id}/disable (SPEC_FULL.md §9,
// the resilience "DisableVenue" hook of §7).
func (s *Server) handleDisableVenue(w http.ResponseWriter, r *http.Request) {
	id := routeVar(r, "id")
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, venueerr.ValidationError, "venue id is required", "")
		return
	}
	if err := s.registry.DisableVenue(r.Context(), id); err != nil {
		s.writeErrorFromErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"venueId": id, "status": "disabled"})
}

func (s *Server) writeErrorFromErr(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := venueerr.As(err); ok {
		status := http.StatusInternalServerError
		switch ve.Code {
		case venueerr.ValidationError, venueerr.InvalidSymbol:
			status = http.StatusBadRequest
		case venueerr.AuthError, venueerr.PermissionError:
			status = http.StatusUnauthorized
		case venueerr.NotFound:
			status = http.StatusNotFound
		case venueerr.RateLimitError:
			status = http.StatusTooManyRequests
		}
		s.writeError(w, r, status, ve.Code, ve.Message, ve.Error())
		return
	}
	s.writeError(w, r, http.StatusInternalServerError, venueerr.InternalError, "internal error", err.Error())
}
