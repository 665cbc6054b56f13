package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// TestRun_ServeCommand_FailsWithoutDatabase はserveコマンドがDB接続を確認し、
// 接続できない場合はサーバーを起動せずにエラーを返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	err := run(ctx, &buf, []string{"serve"})
	if err == nil {
		t.Fatal("run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error = %v, want database related error", err)
	}
	if !strings.Contains(buf.String(), "starting application") {
		t.Errorf("expected startup log, got %s", buf.String())
	}
}

// TestRun_DefaultCommand_FailsWithoutDatabase はデフォルトコマンド（serve）も同様に振る舞うことを検証する。
func TestRun_DefaultCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := run(ctx, &buf, nil); err == nil {
		t.Fatal("run([]) should fail when the database is unreachable")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	err := run(context.Background(), &buf, []string{"serve"})
	if err == nil {
		t.Fatal("run with missing env should return error")
	}
	if !strings.Contains(err.Error(), "initialization failed") {
		t.Errorf("error = %v, want initialization failure", err)
	}
}

func TestRun_MigrateCommand_UnknownDirection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := run(context.Background(), &buf, []string{"migrate", "sideways"})
	if err == nil {
		t.Fatal("run(migrate sideways) should return error")
	}
	if !strings.Contains(err.Error(), "unknown migration direction") {
		t.Errorf("error = %v, want unknown direction", err)
	}
}

// TestRun_HealthcheckCommand_SkipsConfig はhealthcheckが必須環境変数なしで動作することを検証する。
func TestRun_HealthcheckCommand_SkipsConfig(t *testing.T) {
	clearRequiredEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	t.Setenv("SERVER_PORT", u.Port())

	var buf bytes.Buffer
	if err := run(context.Background(), &buf, []string{"healthcheck"}); err != nil {
		t.Fatalf("run(healthcheck) error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("healthcheck should not initialize logging, got %s", buf.String())
	}
}
