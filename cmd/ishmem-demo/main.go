// Command ishmem-demo launches a multi-PE loopback ishmem job in a
// single process, one goroutine per simulated PE, and exercises
// point-to-point RMA, an atomic counter, and a sum reduction across
// every PE. It stands in for a real deployment's multi-rank launcher,
// which would instead come from the configured runtime plugin's
// PMI-equivalent bootstrap.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/ishmem-go/ishmem"
	"github.com/ishmem-go/ishmem/internal/config"
	"github.com/ishmem-go/ishmem/internal/logging"
	"github.com/ishmem-go/ishmem/internal/runtime"
)

func main() {
	var (
		npes    = flag.Int("npes", 4, "number of simulated PEs")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := config.FromEnviron()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ishmem-demo: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.LogLevel = logging.LevelDebug
	}

	world := runtime.NewWorld(*npes)

	var wg sync.WaitGroup
	results := make([]string, *npes)
	errs := make([]error, *npes)

	for pe := 0; pe < *npes; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			results[pe], errs[pe] = runPE(cfg, world, pe, *npes)
		}(pe)
	}
	wg.Wait()

	for pe, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "pe %d: %v\n", pe, err)
			os.Exit(1)
		}
		fmt.Println(results[pe])
	}
}

// runPE is one simulated PE's entire job: join the barrier at Init,
// put a value into its right neighbor's heap, atomically bump a
// shared counter, sum-reduce each PE's rank across the team, and
// report what it saw.
func runPE(cfg config.Config, world *runtime.World, pe, npes int) (string, error) {
	inst, err := ishmem.Init(cfg, world, pe, npes)
	if err != nil {
		return "", err
	}
	defer inst.Finalize()

	local, err := inst.Calloc(1, 8)
	if err != nil {
		return "", err
	}
	counter, err := inst.Calloc(1, 8)
	if err != nil {
		return "", err
	}
	rankBuf, err := inst.Calloc(1, 8)
	if err != nil {
		return "", err
	}
	sumBuf, err := inst.Calloc(1, 8)
	if err != nil {
		return "", err
	}

	// Every PE must see the same allocations before anyone touches a
	// neighbor's heap.
	if err := inst.Barrier(); err != nil {
		return "", err
	}

	neighbor := (pe + 1) % npes
	if err := ishmem.P[uint64](inst, neighbor, local, uint64(pe)); err != nil {
		return "", err
	}
	if err := inst.Quiet(); err != nil {
		return "", err
	}
	if err := inst.Barrier(); err != nil {
		return "", err
	}

	got, err := ishmem.G[uint64](inst, pe, local)
	if err != nil {
		return "", err
	}

	for p := 0; p < npes; p++ {
		if _, err := ishmem.AmoFetchAdd[uint64](inst, p, counter, 1); err != nil {
			return "", err
		}
	}
	if err := inst.Barrier(); err != nil {
		return "", err
	}
	total, err := ishmem.AmoFetch[uint64](inst, pe, counter)
	if err != nil {
		return "", err
	}

	if err := ishmem.P[uint64](inst, pe, rankBuf, uint64(pe)); err != nil {
		return "", err
	}
	if err := ishmem.Reduce[uint64](inst, ishmem.WorldTeam, ishmem.ReduceSum, sumBuf, rankBuf, 1); err != nil {
		return "", err
	}
	sum, err := ishmem.G[uint64](inst, pe, sumBuf)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("pe %d: received %d from left neighbor, counter=%d, rank-sum=%d", pe, got, total, sum), nil
}
