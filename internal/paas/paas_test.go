package paas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateLogLogsInOnce(t *testing.T) {
	var logins, logs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"token":      "tok",
				"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
			})
		case "/api/v1/logs":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var entry LogEntry
			_ = json.NewDecoder(r.Body).Decode(&entry)
			if entry.Agent != DefaultAgent {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			logs.Add(1)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	for i := 0; i < 3; i++ {
		if err := c.CreateLog(context.Background(), LogEntry{Action: "exec_event", Level: "info"}); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}
	if logins.Load() != 1 || logs.Load() != 3 {
		t.Fatalf("logins=%d logs=%d", logins.Load(), logs.Load())
	}
}

func TestNewClientWithoutURL(t *testing.T) {
	if c := NewClient("  ", "key", 0); c != nil {
		t.Fatalf("expected nil client for empty base url")
	}
}

func TestLevelFromStatus(t *testing.T) {
	if LevelFromStatus(500) != "error" || LevelFromStatus(404) != "warn" || LevelFromStatus(201) != "info" {
		t.Fatalf("unexpected level mapping")
	}
}
