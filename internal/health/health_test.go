package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_ReportsVersion(t *testing.T) {
	h := New("1.2.3")

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := decodeReport(t, rec)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", body.Version)
	}
}

func TestReadyz_AllChecksPass(t *testing.T) {
	h := New("dev",
		Database("history", fakePinger{}),
		SessionHeadroom(fakeCounter{active: 3}, 32),
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeReport(t, rec)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if got := body.Checks["history"].Status; got != "ok" {
		t.Errorf("history check = %q, want ok", got)
	}
	if got := body.Checks["poll_sessions"].Status; got != "ok" {
		t.Errorf("poll_sessions check = %q, want ok", got)
	}
}

func TestReadyz_DatabaseDown(t *testing.T) {
	h := New("dev",
		Database("history", fakePinger{err: errors.New("connection refused")}),
		SessionHeadroom(fakeCounter{}, 32),
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReport(t, rec)
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	got := body.Checks["history"]
	if got.Status != "fail" || got.Error != "connection refused" {
		t.Errorf("history check = %+v, want fail/connection refused", got)
	}
	if body.Checks["poll_sessions"].Status != "ok" {
		t.Errorf("poll_sessions check = %q, want ok", body.Checks["poll_sessions"].Status)
	}
}

func TestReadyz_SessionsAtCapacity(t *testing.T) {
	h := New("dev", SessionHeadroom(fakeCounter{active: 32}, 32))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReport(t, rec)
	if body.Checks["poll_sessions"].Status != "fail" {
		t.Errorf("poll_sessions check = %q, want fail", body.Checks["poll_sessions"].Status)
	}
	if body.Checks["poll_sessions"].Error == "" {
		t.Error("poll_sessions check missing error detail")
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	h := New("dev")

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeReport(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New("dev", Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_Routes(t *testing.T) {
	h := New("dev", SessionHeadroom(fakeCounter{}, 32))

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
