package health_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/passwordless/internal/health"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure/memory"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(p health.Pinger, name string) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return health.NewChecker(p, name, logger, reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(&mockPinger{err: errors.New("db down")}, "postgres")

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name      string
		store     string
		pinger    health.Pinger
		want      string
		wantGauge float64
	}{
		{name: "postgres up", store: "postgres", pinger: &mockPinger{}, want: "up", wantGauge: 1},
		{name: "mysql down", store: "mysql", pinger: &mockPinger{err: errors.New("connection refused")}, want: "down", wantGauge: 0},
		{name: "memory store", store: "memory", pinger: memory.NewTokenRepository(), want: "up", wantGauge: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, reg := newTestChecker(tt.pinger, tt.store)

			result := c.Readiness(context.Background())
			if result.Status != tt.want {
				t.Fatalf("status = %s, want %s", result.Status, tt.want)
			}
			check, ok := result.Checks[tt.store]
			if !ok {
				t.Fatalf("missing %s check in %v", tt.store, result.Checks)
			}
			if check.Status != tt.want {
				t.Errorf("%s check = %s, want %s", tt.store, check.Status, tt.want)
			}
			if tt.want == "down" && check.Error == "" {
				t.Error("expected error message")
			}

			if gauge := testGauge(t, reg, "passwordless_health_check_up", tt.store); gauge != tt.wantGauge {
				t.Errorf("gauge = %f, want %f", gauge, tt.wantGauge)
			}
		})
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}
