package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/annotations"
	"github.com/wbrown/janus-joinbench/joinbench/experiment"
	"github.com/wbrown/janus-joinbench/joinbench/logutil"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/workload"
	"go.uber.org/zap"
)

func main() {
	cfg := joinbench.DefaultConfig()
	logCfg := logutil.DefaultLogConfig()

	var (
		planPath    string
		archivePath string
		dumpDir     string
		rPath       string
		sPath       string
		verbose     bool
		help        bool
	)

	flag.IntVar(&cfg.NR, "nr", cfg.NR, "rows in R")
	flag.IntVar(&cfg.NS, "ns", cfg.NS, "rows in S")
	flag.IntVar(&cfg.PR, "pr", cfg.PR, "payload columns in R")
	flag.IntVar(&cfg.PS, "ps", cfg.PS, "payload columns in S")
	flag.IntVar(&cfg.VecSize, "vec", cfg.VecSize, "batch size for pipelined scans")
	flag.IntVar(&cfg.UniqueKeys, "uk", cfg.UniqueKeys, "distinct keys (FK_FK)")
	flag.TextVar(&cfg.Type, "type", cfg.Type, "join type: PK_FK or FK_FK")
	flag.TextVar(&cfg.Dist, "dist", cfg.Dist, "key distribution: UNIFORM or ZIPF")
	flag.Float64Var(&cfg.ZipfFactor, "zipf", cfg.ZipfFactor, "zipf factor")
	flag.IntVar(&cfg.Selectivity, "sel", cfg.Selectivity, "matches per S row (PK_FK)")
	flag.TextVar(&cfg.FKFK, "fkfk", cfg.FKFK, "FK_FK semantics: covering or independent")
	flag.BoolVar(&cfg.AggOnly, "agg", cfg.AggOnly, "count matches instead of materializing")
	flag.BoolVar(&cfg.LateMaterialization, "late", cfg.LateMaterialization, "gather payloads after matching")
	flag.StringVar(&cfg.Output, "out", cfg.Output, "result log (CSV rows are appended)")
	flag.TextVar(&cfg.Algo, "algo", cfg.Algo, "join algorithm: LIB, PHJ, SMJ, SHJ, SMJI (or 0-4)")
	flag.IntVar(&cfg.PHJLogPart1, "log1", cfg.PHJLogPart1, "PHJ first pass radix bits")
	flag.IntVar(&cfg.PHJLogPart2, "log2", cfg.PHJLogPart2, "PHJ second pass radix bits")
	flag.IntVar(&cfg.KeyBytes, "kb", cfg.KeyBytes, "key width in bytes (4 or 8)")
	flag.IntVar(&cfg.ValBytes, "vb", cfg.ValBytes, "payload width in bytes (4 or 8)")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "generator seed")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker count (0 = number of CPUs)")
	flag.Int64Var(&cfg.MemoryLimit, "mem-limit", cfg.MemoryLimit, "memory limit in bytes (0 = unlimited)")

	flag.StringVar(&planPath, "plan", "", "run a TOML sweep plan instead of a single configuration")
	flag.StringVar(&archivePath, "archive", "", "workload archive directory (see build-workload)")
	flag.StringVar(&dumpDir, "dump", "", "write each join output as CSV into this directory")
	flag.StringVar(&rPath, "r-csv", "", "load R from CSV instead of generating it")
	flag.StringVar(&sPath, "s-csv", "", "load S from CSV instead of generating it")
	flag.StringVar(&logCfg.Level, "log-level", logCfg.Level, "log level: debug, info, warn, error")
	flag.StringVar(&logCfg.Filename, "log-file", "", "log to a rotated file instead of stderr")
	flag.BoolVar(&verbose, "v", false, "verbose mode (show run and phase annotations)")
	flag.BoolVar(&help, "h", false, "show help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Equi-join benchmark over generated relations R and S.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                             # SMJ over 4096 x 4096 PK_FK rows\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -algo PHJ -nr 1048576 -ns 1048576\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -type FK_FK -uk 1024 -dist ZIPF -zipf 0.9 -algo SHJ\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -agg -sel 4                 # count matches only\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -plan sweep.toml -archive testdata/workloads\n", os.Args[0])
	}
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	var plan *experiment.Plan
	if planPath != "" {
		var err error
		if plan, err = experiment.LoadPlan(planPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load plan: %v\n", err)
			os.Exit(1)
		}
		// explicit log flags override the plan's [log] table
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		level, file := logCfg.Level, logCfg.Filename
		logCfg = plan.Log
		if set["log-level"] {
			logCfg.Level = level
		}
		if set["log-file"] {
			logCfg.Filename = file
		}
		if set["mem-limit"] {
			plan.Base.MemoryLimit = cfg.MemoryLimit
		}
	}

	logger, err := logutil.SetupLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logutil.ReplaceLogger(logger)

	runner := experiment.NewRunner(memory.NewHostResource(0), logger)
	runner.Stats = os.Stdout
	runner.DumpDir = dumpDir
	runner.RPath, runner.SPath = rPath, sPath
	if verbose {
		runner.Collector = annotations.NewCollector(annotations.ConsoleHandler(os.Stderr))
		runner.Preview = os.Stdout
	}

	if archivePath != "" {
		arc, err := workload.OpenArchive(archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
			os.Exit(1)
		}
		defer arc.Close()
		runner.Archive = arc
	}

	if plan != nil {
		cfgs := plan.Expand()
		logger.Info("starting sweep", zap.String("plan", planPath), zap.Int("runs", len(cfgs)))
		results, err := runner.Sweep(cfgs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d of %d runs completed, results appended to %s\n", len(results), len(cfgs), plan.Base.Output)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	cfg.Print(os.Stdout)

	if _, err := runner.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
}
