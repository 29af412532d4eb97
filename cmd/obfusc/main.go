// Command obfusc runs the obfuscation pipeline against a demo module,
// since the source→IR frontend and IR→native backend are out of core
// scope for this repository. It exists to give the core a runnable entry
// point, not as a production frontend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/duskforge/obfusc/internal/config"
	"github.com/duskforge/obfusc/internal/ledger"
	"github.com/duskforge/obfusc/internal/logging"
	"github.com/duskforge/obfusc/internal/pipeline"
)

const version = "0.1.0"

func main() {
	debug := flag.Bool("d", false, "Enable debug output")
	flag.BoolVar(debug, "debug", false, "Enable debug output")
	showVersion := flag.Bool("v", false, "Show version")
	flag.BoolVar(showVersion, "version", false, "Show version")
	status := flag.Bool("status", false, "Print ledger network status and exit")
	artifact := flag.String("artifact", "", "Path to an artifact whose hash is recorded on the ledger")
	flag.Parse()

	if *showVersion {
		fmt.Printf("obfusc %s\n", version)
		os.Exit(0)
	}

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *status {
		printStatus(ctx, cfg, logger)
		return
	}

	mod := pipeline.SampleModule()
	pl := pipeline.New(cfg, logger)
	result := pl.Run(ctx, mod, *artifact)

	if !result.Success {
		fmt.Fprintln(os.Stderr, "obfuscation failed:", result.ErrorMessage)
		os.Exit(1)
	}

	fmt.Printf("genome: %v\n", result.Genome)
	if result.PassReport != nil {
		fmt.Printf("functions %d->%d blocks %d->%d instructions %d->%d\n",
			result.PassReport.Before.Functions, result.PassReport.After.Functions,
			result.PassReport.Before.Blocks, result.PassReport.After.Blocks,
			result.PassReport.Before.Instructions, result.PassReport.After.Instructions,
		)
	}
	if result.Verification != nil {
		fmt.Printf("verification: verified=%v txid=%s network=%s\n",
			result.Verification.Verified, result.Verification.TransactionID, result.Verification.Network)
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, d.Error())
	}
}

func printStatus(ctx context.Context, cfg config.Config, logger *logging.Logger) {
	rec := ledger.NewRecorder(cfg.Ledger, nil, logger)
	if err := rec.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ledger initialize:", err)
		os.Exit(2)
	}
	fmt.Println(rec.NetworkStatus())
}
