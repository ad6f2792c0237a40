package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"github.com/raeburnlaw/caseguard/internal/redact"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.Audit.File.Enabled = false
	cfg.WebSocket.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}

	redactor, err := redact.New(cfg.Redaction, log)
	if err != nil {
		t.Fatalf("Failed to create redactor: %v", err)
	}
	writer, err := audit.NewWriter(cfg.Audit, redactor, log)
	if err != nil {
		t.Fatalf("Failed to create audit writer: %v", err)
	}
	return New(cfg, redactor, writer, nil, log)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Health response is not JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %q", body["status"])
	}
}

func TestRuleEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	t.Run("list rules", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/rules", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var rules []map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if len(rules) != 13 {
			t.Errorf("Expected 13 rules, got %d", len(rules))
		}
	})

	t.Run("get rule", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/rules/email", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var rule map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if rule["id"] != "email" || rule["tag"] != "EMAIL" {
			t.Errorf("Unexpected rule payload: %v", rule)
		}
	})

	t.Run("get unknown rule", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/rules/no-such-rule", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("add rule", func(t *testing.T) {
		body := `{"id":"client-id","name":"Client id","pattern":"\\bCLI-\\d{6}\\b","category":"IDENTIFIER","severity":"MEDIUM"}`
		rec := doJSON(t, s, "POST", "/api/v1/rules", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("add duplicate rule", func(t *testing.T) {
		body := `{"id":"email","name":"Dup","pattern":"x","category":"CONTACT","severity":"LOW"}`
		rec := doJSON(t, s, "POST", "/api/v1/rules", body)
		if rec.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d", rec.Code)
		}
	})

	t.Run("add rule with bad pattern", func(t *testing.T) {
		body := `{"id":"broken","name":"Broken","pattern":"[unclosed","category":"CONTACT","severity":"LOW"}`
		rec := doJSON(t, s, "POST", "/api/v1/rules", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("set rule status", func(t *testing.T) {
		rec := doJSON(t, s, "PATCH", "/api/v1/rules/bank-account/status", `{"enabled":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		rule, _ := s.redactor.GetRule("bank-account")
		if !rule.Enabled {
			t.Error("Rule status not applied")
		}
	})

	t.Run("set status of unknown rule", func(t *testing.T) {
		rec := doJSON(t, s, "PATCH", "/api/v1/rules/no-such-rule/status", `{"enabled":true}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("rule stats", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/rules/stats", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
	})
}

func TestRedactEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	t.Run("text", func(t *testing.T) {
		rec := doJSON(t, s, "POST", "/api/v1/redact", `{"text":"email jane@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		redacted, _ := body["redactedText"].(string)
		if !strings.Contains(redacted, "[EMAIL_REDACTED]") {
			t.Errorf("Expected redacted text, got %q", redacted)
		}
		if strings.Contains(rec.Body.String(), "jane@example.com") {
			t.Errorf("Original text leaked into the response: %s", rec.Body.String())
		}
	})

	t.Run("object", func(t *testing.T) {
		rec := doJSON(t, s, "POST", "/api/v1/redact",
			`{"object":{"email":"jane@example.com","caseRef":"CASE-2024-00123"},"exemptFields":["caseRef"]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var body struct {
			Redacted map[string]interface{} `json:"redacted"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if body.Redacted["email"] != "[EMAIL_REDACTED]" {
			t.Errorf("Expected redacted email, got %v", body.Redacted["email"])
		}
		if body.Redacted["caseRef"] != "CASE-2024-00123" {
			t.Errorf("Exempt field redacted: %v", body.Redacted["caseRef"])
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := doJSON(t, s, "POST", "/api/v1/redact", `{"text": }`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestCheckEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, "POST", "/api/v1/check", `{"text":"NI AB 12 34 56 C"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var detection redact.Detection
	if err := json.Unmarshal(rec.Body.Bytes(), &detection); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if !detection.HasPII {
		t.Errorf("Expected PII detected: %+v", detection)
	}
}

func TestReportEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	t.Run("unavailable without database sink", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/reports?start=2026-01-01T00:00:00Z&end=2026-01-02T00:00:00Z", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})

	t.Run("invalid start", func(t *testing.T) {
		rec := doJSON(t, s, "GET", "/api/v1/reports?start=yesterday&end=2026-01-02T00:00:00Z", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestRecentEventsWithoutCache(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, "GET", "/api/v1/events/recent", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 2
	s := newTestServer(t, cfg)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, "GET", "/api/v1/rules", "")
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("Requests within the burst must pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once over budget, got %v", statuses)
	}

	t.Run("rejection is audited", func(t *testing.T) {
		if s.writer.BufferLen() == 0 {
			t.Error("Expected a buffered rate-limit audit event")
		}
	})

	t.Run("other clients unaffected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/rules", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected a fresh client to pass, got %d", rec.Code)
		}
	})
}
