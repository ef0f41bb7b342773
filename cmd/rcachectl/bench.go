package main

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/iovacache/internal/logger"
	"github.com/joshuapare/iovacache/iova"
	"github.com/joshuapare/iovacache/iova/rcache"
	"github.com/joshuapare/iovacache/percpu"
)

var (
	benchWorkers int
	benchOps     int
	benchMaxSize uint64
	benchLimit   uint64
	benchHold    int
	benchCores   int
	benchMagSize int
	benchDepot   int
	benchMaxMags int
	benchFlush   bool
	benchSeed    int64
)

func init() {
	cmd := newBenchCmd()
	f := cmd.Flags()
	f.IntVar(&benchWorkers, "workers", 8, "Concurrent goroutines")
	f.IntVar(&benchOps, "ops", 100000, "Operations per worker")
	f.Uint64Var(&benchMaxSize, "max-size", 32, "Largest request in pages")
	f.Uint64Var(&benchLimit, "limit", 0xFFFFF, "Highest PFN a range may reach")
	f.IntVar(&benchHold, "hold", 64, "Ranges each worker keeps mapped at most")
	f.IntVar(&benchCores, "cores", 0, "Simulate this many cores instead of using the host's")
	f.IntVar(&benchMagSize, "mag-size", rcache.DefaultMagSize, "PFNs per magazine")
	f.IntVar(&benchDepot, "depot", rcache.DefaultMaxGlobalMags, "Magazines per depot")
	f.IntVar(&benchMaxMags, "max-mags", 0, "Cap on live magazines (0 = none)")
	f.BoolVar(&benchFlush, "flush", true, "Flush the cache and retry when the domain is exhausted")
	f.Int64Var(&benchSeed, "seed", 1, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent alloc/free workload",
		Long: `The bench command runs --workers goroutines, each performing --ops random
allocations and frees of 1 to --max-size pages, and reports throughput and
cache statistics.

With --cores, a simulated runtime is used and each worker picks a random core
before every operation, which models goroutines migrating between CPUs.

Example:
  rcachectl bench
  rcachectl bench --workers 32 --ops 20000 --max-size 64
  rcachectl bench --cores 4 --mag-size 8 --depot 2 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
}

type benchResult struct {
	Workers   int          `json:"workers"`
	Ops       int          `json:"ops"`
	Elapsed   string       `json:"elapsed"`
	OpsPerSec float64      `json:"ops_per_sec"`
	Failures  int          `json:"failures"`
	Stats     rcache.Stats `json:"stats"`
}

func runBench() error {
	if benchWorkers < 1 || benchOps < 1 || benchMaxSize < 1 || benchHold < 1 {
		return fmt.Errorf("--workers, --ops, --max-size and --hold must be positive")
	}
	if benchMaxSize > math.MaxInt64 {
		return fmt.Errorf("--max-size must be at most %d, got %d", int64(math.MaxInt64), benchMaxSize)
	}

	var (
		rt  percpu.Runtime = percpu.System()
		sim *percpu.Static
	)
	if benchCores > 0 {
		sim = percpu.NewStatic(benchCores)
		rt = sim
	}

	d, err := iova.NewDomain(4096, 1)
	if err != nil {
		return err
	}
	c, err := rcache.New(d, &rcache.Config{
		MagSize:       benchMagSize,
		MaxGlobalMags: benchDepot,
		MaxMagazines:  benchMaxMags,
		Runtime:       rt,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	printVerbose("Running %d workers x %d ops on %d cores\n", benchWorkers, benchOps, rt.Possible())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
		firstErr error
	)
	start := time.Now()
	for w := range benchWorkers {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			n, err := benchWorker(c, sim, rand.New(rand.NewSource(seed)))
			mu.Lock()
			failures += n
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}(benchSeed + int64(w))
	}
	wg.Wait()
	elapsed := time.Since(start)
	if firstErr != nil {
		return firstErr
	}

	total := benchWorkers * benchOps
	logger.Info("bench finished", "ops", total, "elapsed", elapsed, "failures", failures)
	if failures > 0 {
		logger.Warn("bench: allocations failed", "failures", failures, "limit", benchLimit, "flush", benchFlush)
	}

	res := benchResult{
		Workers:   benchWorkers,
		Ops:       total,
		Elapsed:   elapsed.String(),
		OpsPerSec: float64(total) / elapsed.Seconds(),
		Failures:  failures,
		Stats:     c.Stats(),
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("%s\n", printer.Sprintf("%d ops in %v (%.0f ops/s), %d allocation failures",
		res.Ops, elapsed.Round(time.Millisecond), res.OpsPerSec, res.Failures))
	printStats(res.Stats)
	return nil
}

type mapping struct {
	pfn  uint64
	size uint64
}

// benchWorker runs one worker's operations and frees whatever it still holds.
// It returns the number of allocations that found no space.
func benchWorker(c *rcache.Cache, sim *percpu.Static, rng *rand.Rand) (int, error) {
	held := make([]mapping, 0, benchHold)
	failures := 0

	for range benchOps {
		if sim != nil {
			sim.SetCurrent(rng.Intn(sim.Possible()))
		}

		if len(held) == 0 || len(held) < benchHold && rng.Intn(2) == 0 {
			size := 1 + uint64(rng.Int63n(int64(benchMaxSize)))
			pfn, err := c.AllocFast(size, benchLimit, benchFlush)
			if err != nil {
				failures++
				continue
			}
			held = append(held, mapping{pfn: pfn, size: size})
			continue
		}

		i := rng.Intn(len(held))
		m := held[i]
		held[i] = held[len(held)-1]
		held = held[:len(held)-1]
		if err := c.FreeFast(m.pfn, m.size); err != nil {
			return failures, err
		}
	}

	for _, m := range held {
		if err := c.FreeFast(m.pfn, m.size); err != nil {
			return failures, err
		}
	}
	return failures, nil
}
