package lock

import (
	"context"
	"encoding/csv"
	"errors"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	errLock := errors.New("lock failed")

	tests := map[string]struct {
		wait    time.Duration
		lockErr error
		tryOk   bool
		wantErr string
	}{
		"blocking":          {wait: 0},
		"blocking error":    {wait: 0, lockErr: errLock, wantErr: "lock failed"},
		"bounded granted":   {wait: time.Second, tryOk: true},
		"bounded timed out": {wait: time.Second, tryOk: false, wantErr: "timed out after 1s"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			viper.Set("wait", tc.wait)
			t.Cleanup(func() { viper.Set("wait", time.Duration(0)) })

			locked, tried := false, false
			err := acquire(ctx,
				func(context.Context) error { locked = true; return tc.lockErr },
				func(_ context.Context, d time.Duration) (bool, error) {
					tried = true
					if d != tc.wait {
						t.Errorf("Expected timeout %s, got %s", tc.wait, d)
					}
					return tc.tryOk, nil
				},
			)

			if tc.wait > 0 && (locked || !tried) {
				t.Errorf("Expected only the bounded variant to run")
			}
			if tc.wait == 0 && (!locked || tried) {
				t.Errorf("Expected only the blocking variant to run")
			}
			if tc.wantErr == "" && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)) {
				t.Errorf("Expected error %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPerfTestsRunInProcess(t *testing.T) {
	ctx := context.Background()
	g := lockmgr.NewGroup(t.Name())

	for name, test := range perfTests(2) {
		t.Run(name, func(t *testing.T) {
			s := g.NewSession(1)
			defer s.Close()

			if err := test.setup(ctx, s, name); err != nil {
				t.Fatalf("setup failed: %v", err)
			}
			for i := 0; i < 10; i++ {
				if err := test.op(ctx, s, name); err != nil {
					t.Fatalf("op %d failed: %v", i, err)
				}
			}
		})
	}
}

func TestWriteResultsToCSV(t *testing.T) {
	registry := metrics.NewRegistry()
	for _, name := range []string{"lock", "notify"} {
		timer := metrics.NewTimer()
		timer.Update(2 * time.Millisecond)
		if err := registry.Register(name, timer); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "perf.csv")
	if err := writeResultsToCSV(path, registry, 4, 100, 10); err != nil {
		t.Fatalf("writeResultsToCSV failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected a header and 2 rows, got %d records", len(records))
	}
	if records[0][0] != "Test" {
		t.Errorf("Expected the header first, got %v", records[0])
	}
	seen := map[string]bool{}
	for _, r := range records[1:] {
		seen[r[0]] = true
		if r[1] != "1" {
			t.Errorf("%s: expected count 1, got %s", r[0], r[1])
		}
	}
	if !seen["lock"] || !seen["notify"] {
		t.Errorf("Expected rows for lock and notify, got %v", records[1:])
	}
}
