// Command arccell-stress hammers cells with random clone, drop, get and set
// operations from many goroutines and checks that every value installed was
// disposed of exactly once. It is meant to be built with -race.
//
// Usage:
//
//	arccell-stress -goroutines 16 -ops 100000 -variant both
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

type config struct {
	goroutines int
	ops        int
	rounds     int
	seed       uint64
	variant    string
	verbose    bool
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("arccell-stress", flag.ContinueOnError)
	fs.IntVar(&cfg.goroutines, "goroutines", runtime.GOMAXPROCS(-1), "number of goroutines per round")
	fs.IntVar(&cfg.ops, "ops", 100000, "operations per goroutine per round")
	fs.IntVar(&cfg.rounds, "rounds", 1, "number of rounds to run")
	fs.Uint64Var(&cfg.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	fs.StringVar(&cfg.variant, "variant", "both", "which cell to exercise: shared, owned or both")
	fs.BoolVar(&cfg.verbose, "v", false, "log every round")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch {
	case cfg.goroutines < 1:
		return cfg, fmt.Errorf("-goroutines must be positive, got %d", cfg.goroutines)
	case cfg.ops < 1:
		return cfg, fmt.Errorf("-ops must be positive, got %d", cfg.ops)
	case cfg.rounds < 1:
		return cfg, fmt.Errorf("-rounds must be positive, got %d", cfg.rounds)
	}
	switch cfg.variant {
	case "shared", "owned", "both":
	default:
		return cfg, fmt.Errorf("unknown -variant %q", cfg.variant)
	}
	return cfg, nil
}

func setupLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg.verbose)

	log.WithFields(log.Fields{
		"goroutines": cfg.goroutines,
		"ops":        cfg.ops,
		"rounds":     cfg.rounds,
		"seed":       cfg.seed,
		"variant":    cfg.variant,
	}).Info("starting")

	failed := false
	for _, v := range variants(cfg.variant) {
		for round := 0; round < cfg.rounds; round++ {
			start := time.Now()
			rep, err := v.run(cfg, cfg.seed+uint64(round))
			entry := log.WithFields(log.Fields{
				"variant":  v.name,
				"round":    round,
				"made":     rep.made,
				"disposed": rep.disposed,
				"gets":     rep.gets,
				"sets":     rep.sets,
				"elapsed":  time.Since(start),
			})
			if err != nil {
				entry.WithError(err).Error("round failed")
				failed = true
				continue
			}
			entry.Debug("round ok")
		}
	}

	if failed {
		os.Exit(1)
	}
	log.Info("all rounds ok")
}
