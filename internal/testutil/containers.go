// Package testutil starts shared backing services for integration tests.
//
// Each service is started at most once per test binary. Containers are
// reaped by testcontainers when the binary exits. Tests are skipped when run
// with -short or when no container runtime is available.
package testutil

import (
	"testing"
)

func requireContainers(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}
}

func skipOnError(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Skipf("%s container unavailable: %v", what, err)
	}
}
