package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"sams/internal/auth"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

func setupEnv(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SAMS_JWT_SECRET", "cli-secret")
	t.Setenv("SAMS_DATABASE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("SAMS_CONFIG_FILE", "")
	return []string{"-env", filepath.Join(dir, "absent.env")}
}

func TestRun_Usage(t *testing.T) {
	if err := run(context.Background(), nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("Expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"launch"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("Expected usage error for unknown command, got %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"help"}, &out); err != nil || !strings.Contains(out.String(), "register") {
		t.Errorf("Expected usage text, got %q (%v)", out.String(), err)
	}
}

func TestRun_RegisterAndToken(t *testing.T) {
	common := setupEnv(t)
	ctx := context.Background()

	var out bytes.Buffer
	args := append([]string{"register", "-name", "Dr Silva", "-email", "silva@uni.test", "-password", "correct horse", "-role", types.RoleLecturer}, common...)
	if err := run(ctx, args, &out); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !strings.Contains(out.String(), "user id 1") {
		t.Errorf("Unexpected register output %q", out.String())
	}

	// Same email again is a conflict
	if err := run(ctx, args, &bytes.Buffer{}); err == nil {
		t.Error("Expected duplicate email to fail")
	}

	out.Reset()
	if err := run(ctx, append([]string{"token", "-email", "silva@uni.test", "-password", "correct horse"}, common...), &out); err != nil {
		t.Fatalf("token failed: %v", err)
	}

	identity, err := auth.NewTokenManager("cli-secret", "sams", 0).Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("Issued token does not verify: %v", err)
	}
	if identity.UserID != 1 || identity.Role != types.RoleLecturer {
		t.Errorf("Unexpected identity %+v", identity)
	}

	refused := [][]string{
		{"token", "-email", "silva@uni.test", "-password", "wrong horse"},
		{"token", "-email", "nobody@uni.test", "-password", "correct horse"},
	}
	for _, args := range refused {
		out.Reset()
		err := run(ctx, append(args, common...), &out)
		if !errors.Is(err, auth.ErrInvalidPassword) || !errors.Is(err, interfaces.ErrUnauthenticated) {
			t.Errorf("Expected %v to be refused, got %v", args, err)
		}
		if out.Len() != 0 {
			t.Errorf("No token should be printed for %v, got %q", args, out.String())
		}
	}
}

func TestRun_RegisterValidation(t *testing.T) {
	common := setupEnv(t)
	ctx := context.Background()

	tests := [][]string{
		{"register", "-email", "a@uni.test", "-password", "long enough"},
		{"register", "-name", "A", "-email", "a@uni.test", "-password", "short"},
		{"register", "-name", "A", "-email", "a@uni.test", "-password", "long enough", "-role", "Admin"},
		{"token"},
		{"token", "-email", "a@uni.test"},
		{"hall"},
	}
	for _, args := range tests {
		if err := run(ctx, append(args, common...), &bytes.Buffer{}); err == nil {
			t.Errorf("Expected %v to fail", args)
		}
	}
}

func TestRun_Hall(t *testing.T) {
	common := setupEnv(t)

	var out bytes.Buffer
	if err := run(context.Background(), append([]string{"hall", "-name", "Hall 3", "-min-lat", "6.9"}, common...), &out); err != nil {
		t.Fatalf("hall failed: %v", err)
	}
	if !strings.Contains(out.String(), `"Hall 3" with id 1`) {
		t.Errorf("Unexpected hall output %q", out.String())
	}
}
