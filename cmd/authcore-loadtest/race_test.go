package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunReportsNoViolations(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, options{
		rounds:      3,
		concurrency: 6,
		jitter:      time.Millisecond,
		prefix:      "test",
	})
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "violations=0") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
}

func TestRootCmdRejectsBadFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--rounds", "0"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero rounds")
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %d", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %d", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %d", got)
	}
}
