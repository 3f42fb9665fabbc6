package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sams/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Auth.JWTSecret = "app-secret"
	cfg.HTTP.Host = "127.0.0.1"
	return cfg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewApplication(nil); err == nil {
		t.Error("Expected error for nil config")
	}

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	if _, err := NewApplication(cfg); err == nil || !strings.Contains(err.Error(), "JWT secret") {
		t.Errorf("Expected secret validation error, got %v", err)
	}

	cfg = testConfig(t)
	cfg.Attendance.TimeZone = "Nowhere/Special"
	if _, err := NewApplication(cfg); err == nil {
		t.Error("Expected time zone validation error")
	}
}

func TestDatabaseConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.MaxConnections = 4
	cfg.Database.Timeout = 7 * time.Second

	dbConfig := DatabaseConfig(cfg)
	if dbConfig.DatabasePath != cfg.Database.Path || dbConfig.MaxConnections != 4 || dbConfig.WriteTimeout != 7*time.Second {
		t.Errorf("Unexpected database config: %+v", dbConfig)
	}
	if err := dbConfig.Validate(); err != nil {
		t.Errorf("Translated config should validate: %v", err)
	}
}

func TestApplication_ServeAndShutdown(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr())
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("Health check failed: %v", err)
	}

	var health struct {
		Status        string                 `json:"status"`
		Notifications map[string]interface{} `json:"notifications"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if health.Status != "healthy" || health.Notifications["running"] != true {
		t.Errorf("Unexpected health: %+v", health)
	}

	resp, err = http.Get(fmt.Sprintf("http://%s/api/session/active", ln.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
