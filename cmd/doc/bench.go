package doc

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/document"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sync"
	"sync/atomic"
	"time"
)

// benchDocument is the counter incremented by the benchmark
type benchDocument struct {
	document.Base
	Value int64 `json:"value"`
}

var benchCmd = &cobra.Command{
	Use:   "bench [cache-key]",
	Short: "Benchmark concurrent atomic updates of a volatile document",
	Long:  util.WrapString("Increments a counter document from several goroutines with UpdateAtomic and reports the latency of each committed update. The counter is read back at the end, it must have grown by the number of applied updates."),
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBench,
}

func init() {
	key := "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines updating the document"))
	key = "iterations"
	benchCmd.Flags().Int(key, 100, util.WrapString("Number of updates per goroutine"))
}

func runBench(cmd *cobra.Command, args []string) error {
	cacheKey := "__bench"
	if len(args) == 1 {
		cacheKey = args[0]
	}

	opts, err := util.GetDocumentOptions(cacheKey)
	if err != nil {
		return err
	}
	threads := max(viper.GetInt("threads"), 1)
	iterations := max(viper.GetInt("iterations"), 1)

	m, err := newVolatileManager(opts, func() *benchDocument { return &benchDocument{} })
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	before, err := m.GetOrCreateImmutable(ctx)
	if err != nil {
		return err
	}
	start := before.Value

	fmt.Println("Benchmark of atomic document updates")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Document: %s, Threads: %d, Iterations: %d\n", cacheKey, threads, iterations)
	fmt.Println()

	timer := gometrics.NewTimer()
	defer timer.Stop()

	var applied, dropped, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				var ok bool
				t := time.Now()

				uow := newUnitOfWork()
				err := m.UpdateAtomic(ctx, uow, func(_ context.Context, d *benchDocument) (*benchDocument, error) {
					next := *d
					next.Value++
					return &next, nil
				}, func(context.Context, *benchDocument) error {
					ok = true
					return nil
				})
				if err == nil {
					err = uow.Commit(ctx)
				}

				switch {
				case err != nil:
					failed.Add(1)
				case ok:
					applied.Add(1)
					timer.UpdateSince(t)
				default:
					dropped.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	after, err := m.GetOrCreateImmutable(ctx)
	if err != nil {
		return err
	}

	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("applied=%d dropped=%d failed=%d\n", applied.Load(), dropped.Load(), failed.Load())
	fmt.Printf("latency mean=%s p50=%s p95=%s p99=%s max=%s\n",
		time.Duration(timer.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(timer.Max()))
	fmt.Printf("throughput=%.1f updates/s\n", timer.RateMean())
	fmt.Printf("counter %d -> %d (expected %d)\n", start, after.Value, start+applied.Load())

	if after.Value != start+applied.Load() {
		return fmt.Errorf("lost updates: counter is %d, expected %d", after.Value, start+applied.Load())
	}
	return nil
}
