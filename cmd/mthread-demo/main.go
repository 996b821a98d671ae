// Command mthread-demo is a small illustration of the scheduler core: it
// creates a handful of u-threads spread across a few groups, under
// whichever policy -policy names, and prints dispatch/preemption counts
// once every u-thread has finished. It is not a workload benchmark.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tgranlund/mthread"
	"github.com/tgranlund/mthread/internal/logging"
)

func main() {
	var (
		policyName = flag.String("policy", "priority", "scheduling policy: priority or credit")
		numUThreads = flag.Int("n", 32, "number of u-threads to create")
		numGroups   = flag.Int("groups", 4, "number of distinct u-thread groups")
		spin        = flag.Int("spin", 20000, "checkpoint iterations per u-thread")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	opts := mthread.DefaultOptions()
	opts.Logger = logger
	if *policyName == "credit" {
		opts.Policy = mthread.PolicyCredit
	}

	app, err := mthread.New(opts)
	if err != nil {
		logger.Error("failed to start scheduler core", "error", err)
		os.Exit(1)
	}

	logger.Info("scheduler core started", "policy", opts.Policy, "uthreads", *numUThreads, "groups", *numGroups)

	// Conventional credit tiers; meaningless under the priority policy,
	// where CreateUThread ignores the credits argument.
	credits := []int64{100, 75, 50, 25}

	for i := 0; i < *numUThreads; i++ {
		group := i % *numGroups
		credit := credits[i%len(credits)]
		id, err := app.CreateUThread(mthread.SpinWorkload(*spin), group, credit)
		if err != nil {
			logger.Error("uthread_create failed", "error", err)
			os.Exit(1)
		}
		logger.Debug("created u-thread", "id", id, "group", group)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Exit(ctx); err != nil {
		logger.Error("app_exit failed", "error", err)
		os.Exit(1)
	}

	snap := app.Metrics.Snapshot()
	fmt.Printf("dispatches=%d preemptions=%d replenishes=%d ticks=%d avg_wait=%s\n",
		snap.Dispatches, snap.Preemptions, snap.Replenishes, snap.Ticks, time.Duration(snap.AvgWaitNs))
}
