package lock

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/lockmgr"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	perfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for dSync servers",
		Long: `Measures the round trip of lock operations. Every thread opens its own
connection and runs the configured number of operations per test.`,
		RunE: runPerf,
	}
	perfKeyPrefix = "__perf"
	perfNames     = []string{"lock", "lock-shared", "try-lock", "semaphore", "notify"}
)

// perfTest runs one operation of a test. It is called with the connection of
// the worker and the name to use.
type perfTest struct {
	setup func(ctx context.Context, locks lockmgr.ILockManager, name string) error
	op    func(ctx context.Context, locks lockmgr.ILockManager, name string) error
}

func init() {
	perfCmd.Flags().String("skip", "", util.WrapString("Tests to skip (comma separated, e.g. lock,notify)"))
	perfCmd.Flags().Int("threads", 10, util.WrapString("Number of concurrent connections"))
	perfCmd.Flags().Int("ops", 1000, util.WrapString("Number of operations per thread and test"))
	perfCmd.Flags().Int("keys", 10, util.WrapString("How many different names to use. Fewer names mean more contention"))
	perfCmd.Flags().String("csv", "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func perfTests(threads int) map[string]perfTest {
	emplaceMutex := func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
		return locks.Mutexes().Emplace(ctx, name)
	}

	return map[string]perfTest{
		"lock": {
			setup: emplaceMutex,
			op: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				if err := locks.Mutexes().Lock(ctx, name); err != nil {
					return err
				}
				return locks.Mutexes().Unlock(ctx, name)
			},
		},
		"lock-shared": {
			setup: emplaceMutex,
			op: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				if err := locks.Mutexes().LockShared(ctx, name); err != nil {
					return err
				}
				return locks.Mutexes().UnlockShared(ctx, name)
			},
		},
		"try-lock": {
			setup: emplaceMutex,
			op: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				ok, err := locks.Mutexes().TryLock(ctx, name)
				if err != nil || !ok {
					return err
				}
				return locks.Mutexes().Unlock(ctx, name)
			},
		},
		"semaphore": {
			setup: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				_, err := locks.Semaphores().Emplace(ctx, name, int64(threads/2+1))
				return err
			},
			op: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				if err := locks.Semaphores().Acquire(ctx, name); err != nil {
					return err
				}
				return locks.Semaphores().Release(ctx, name, 1)
			},
		},
		"notify": {
			setup: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				return locks.ConditionVariables().Emplace(ctx, name)
			},
			op: func(ctx context.Context, locks lockmgr.ILockManager, name string) error {
				return locks.ConditionVariables().NotifyOne(ctx, name)
			},
		},
	}
}

func runPerf(cmd *cobra.Command, _ []string) error {
	threads := max(viper.GetInt("threads"), 1)
	ops := max(viper.GetInt("ops"), 1)
	keys := max(viper.GetInt("keys"), 1)
	skip := strings.Split(viper.GetString("skip"), ",")

	fmt.Println("Performance testing tool for dSync servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Ops: %d, Keys: %d\n", threads, ops, keys)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	tests := perfTests(threads)

	for _, name := range perfNames {
		if slices.Contains(skip, name) {
			fmt.Printf("%-14sskipped\n", name)
			continue
		}

		timer := metrics.NewTimer()
		if err := registry.Register(name, timer); err != nil {
			return err
		}

		start := time.Now()
		if err := runPerfTest(cmd.Context(), name, tests[name], timer, threads, ops, keys); err != nil {
			return fmt.Errorf("test %s failed: %w", name, err)
		}
		printResult(name, timer, time.Since(start))
		timer.Stop()
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry, threads, ops, keys); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runPerfTest fans the test out to threads connections
func runPerfTest(ctx context.Context, name string, test perfTest, timer metrics.Timer, threads, ops, keys int) error {
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < threads; w++ {
		w := w
		g.Go(func() error {
			locks, err := newLockMgr()
			if err != nil {
				return err
			}
			defer locks.Close()

			names := make([]string, keys)
			for i := range names {
				names[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, name, i)
				if err := test.setup(ctx, locks, names[i]); err != nil {
					return err
				}
			}

			for i := 0; i < ops; i++ {
				start := time.Now()
				if err := test.op(ctx, locks, names[(w+i)%keys]); err != nil {
					return err
				}
				timer.UpdateSince(start)
			}
			return nil
		})
	}

	return g.Wait()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a test in a formatted way
func printResult(test string, t metrics.Timer, elapsed time.Duration) {
	ps := t.Percentiles([]float64{0.5, 0.99})
	opsPerSec := float64(t.Count()) / max(elapsed.Seconds(), 1e-9)

	fmt.Printf("%-14s%8.0f ops/sec\tmean %-10s p50 %-10s p99 %-10s max %s\n",
		test,
		opsPerSec,
		time.Duration(t.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(t.Max()),
	)
}

// writeResultsToCSV writes all timers of the registry to a CSV file
func writeResultsToCSV(csvPath string, registry metrics.Registry, threads, ops, keys int) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "MaxNs",
		"Endpoints", "ShardID", "Serializer", "Transport",
		"Threads", "Ops", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()
	var rowErr error
	registry.Each(func(test string, i interface{}) {
		t, ok := i.(metrics.Timer)
		if !ok || rowErr != nil {
			return
		}
		ps := t.Percentiles([]float64{0.5, 0.99})
		row := []string{
			test,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(t.Max(), 10),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(threads),
			strconv.Itoa(ops),
			strconv.Itoa(keys),
		}
		if err := writer.Write(row); err != nil {
			rowErr = fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	})

	return rowErr
}
