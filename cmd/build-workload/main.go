package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/janus-joinbench/joinbench"
	"github.com/wbrown/janus-joinbench/joinbench/experiment"
	"github.com/wbrown/janus-joinbench/joinbench/memory"
	"github.com/wbrown/janus-joinbench/joinbench/workload"
)

func main() {
	preset := flag.String("config", "small", "Workload preset: small, medium, or large")
	planPath := flag.String("plan", "", "archive every workload of a TOML sweep plan instead of a preset")
	archivePath := flag.String("archive", "testdata/workloads", "archive directory")
	list := flag.Bool("list", false, "list archived workloads and exit")
	flag.Parse()

	if *list {
		arc, err := workload.OpenArchive(*archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
			os.Exit(1)
		}
		defer arc.Close()
		entries, err := arc.Entries()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list archive: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Println(e)
		}
		return
	}

	var cfgs []joinbench.Config
	if *planPath != "" {
		plan, err := experiment.LoadPlan(*planPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load plan: %v\n", err)
			os.Exit(1)
		}
		cfgs = plan.Expand()
	} else {
		cfg, err := workload.Preset(*preset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unknown config type: %s (use 'small', 'medium', or 'large')\n", *preset)
			os.Exit(1)
		}
		cfgs = []joinbench.Config{cfg}
	}

	fmt.Printf("Building workload archive: %s\n", *archivePath)
	fmt.Printf("  Workloads: %d\n", len(cfgs))
	fmt.Println()

	if err := workload.BuildArchive(os.Stdout, *archivePath, cfgs, memory.NewHostResource(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build archive: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Done! Use this archive with:")
	fmt.Printf("   joinbench -archive %s ...\n", *archivePath)
}
