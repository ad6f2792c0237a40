package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/redact"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// ruleView is the API shape of a redaction rule.
type ruleView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Tag      string `json:"tag"`
	Enabled  bool   `json:"enabled"`
}

func toRuleView(rule redact.Rule) ruleView {
	return ruleView{
		ID:       rule.ID,
		Name:     rule.Name,
		Pattern:  rule.Pattern.String(),
		Category: string(rule.Category),
		Severity: string(rule.Severity),
		Tag:      rule.Tag,
		Enabled:  rule.Enabled,
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.redactor.Rules()
	views := make([]ruleView, len(rules))
	for i, rule := range rules {
		views[i] = toRuleView(rule)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok := s.redactor.GetRule(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown rule: %s", id))
		return
	}
	s.writeJSON(w, http.StatusOK, toRuleView(rule))
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Pattern  string `json:"pattern"`
		Category string `json:"category"`
		Severity string `json:"severity"`
		Tag      string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.redactor.AddCustomRule(req.ID, req.Name, req.Pattern,
		redact.Category(req.Category), redact.Severity(req.Severity), req.Tag)
	if err != nil {
		var dup *redact.DuplicateRuleError
		if errors.As(err, &dup) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writer.Log(audit.Event{
		EventType:  audit.EventDataCreate,
		Severity:   audit.SeverityInfo,
		Resource:   "redaction_rule",
		ResourceID: req.ID,
		Action:     "create",
	})

	rule, _ := s.redactor.GetRule(req.ID)
	s.writeJSON(w, http.StatusCreated, toRuleView(rule))
}

func (s *Server) handleSetRuleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.redactor.SetRuleStatus(id, req.Enabled) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown rule: %s", id))
		return
	}

	s.writer.Log(audit.Event{
		EventType:  audit.EventDataUpdate,
		Severity:   audit.SeverityInfo,
		Resource:   "redaction_rule",
		ResourceID: id,
		Action:     "set_status",
		Details:    map[string]interface{}{"enabled": req.Enabled},
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": req.Enabled})
}

func (s *Server) handleRuleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.redactor.Stats())
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string                 `json:"text"`
		Object       map[string]interface{} `json:"object"`
		Role         string                 `json:"role"`
		Level        string                 `json:"level"`
		ExemptFields []string               `json:"exemptFields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := redact.Options{
		Role:         req.Role,
		Level:        redact.Level(req.Level),
		ExemptFields: req.ExemptFields,
	}

	if req.Object != nil {
		redacted, summary := s.redactor.RedactObject(req.Object, opts)
		s.broadcastRedaction(summary...)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"redacted": redacted,
			"summary":  summary,
		})
		return
	}

	result := s.redactor.Redact(req.Text, opts)
	s.broadcastRedaction(result)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeJSON(w, http.StatusOK, s.redactor.ContainsPII(req.Text))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := time.Parse(time.RFC3339, query.Get("start"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, query.Get("end"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}

	filters := audit.ReportFilters{
		UserID:    query.Get("userId"),
		Resource:  query.Get("resource"),
		EventType: audit.EventType(query.Get("eventType")),
	}

	report, err := s.writer.GenerateReport(r.Context(), start, end, filters)
	if err != nil {
		var unavailable *audit.ReportUnavailableError
		if errors.As(err, &unavailable) {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		var tooLarge *audit.RangeTooLargeError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Report generation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	s.writer.LogExport("", "audit_report", map[string]interface{}{
		"entries": report.Summary.Total,
		"start":   start.Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
	})

	if query.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-report.csv"`)
		if err := audit.WriteCSV(w, report.Entries); err != nil {
			s.logger.Error("CSV export failed", zap.Error(err))
		}
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "recent-events cache is not enabled")
		return
	}

	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	events, err := s.recent.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read recent events", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read recent events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}
