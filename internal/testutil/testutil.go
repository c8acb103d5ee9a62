// Package testutil provides shared helpers for tests that wait on goroutines
// or exercise HTTP handlers.
package testutil

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/sensormap/internal/monitoring"
)

// DefaultTimeout bounds every wait in this package.
const DefaultTimeout = 5 * time.Second

// MuteLogs discards diagnostic log output. Call it from TestMain.
func MuteLogs() {
	monitoring.SetLogger(log.New(io.Discard, "", 0).Printf)
}

// Eventually polls cond until it holds, failing the test after DefaultTimeout.
func Eventually(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// Receive waits for a value on ch, failing the test after DefaultTimeout.
func Receive[T any](t testing.TB, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(DefaultTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Get serves a GET for target on h and returns the recorded response.
func Get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}
