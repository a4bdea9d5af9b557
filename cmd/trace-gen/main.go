// Command trace-gen generates labeled synthetic movement traces and optionally
// replays them against a running humancheck service.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/humancheck/internal/tracegen"
)

// Default configuration constants.
const (
	defaultSessions   = 200
	defaultTopN       = 20
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 10 * time.Second
	defaultWait       = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions = flag.Int("sessions", defaultSessions, "Number of traces to generate")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait     = flag.Duration("wait", defaultWait, "How long to wait for verdicts")
		outDir   = flag.String("out", "", "Directory for CSV traces (default: none)")
		seed     = flag.Int64("seed", 1, "Generator seed")
		frames   = flag.Int("frames", tracegen.DefaultFrames, "Control-loop frames per trace")
		submit   = flag.Bool("submit", true, "Submit traces to the service")
		topN     = flag.Int("top", defaultTopN, "Suspects to fetch after submission")
		logFile  = flag.String("log", "", `Log file ("-" for none; default trace_gen_TIMESTAMP.log)`)
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		tracegen.ShowHelp()
		return
	}

	closer, err := tracegen.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &tracegen.Config{
		BaseURL:   *baseURL,
		Sessions:  *sessions,
		Workers:   *workers,
		Timeout:   *timeout,
		Wait:      *wait,
		OutputDir: *outDir,
		Seed:      *seed,
		Frames:    *frames,
		Submit:    *submit,
		TopN:      *topN,
		Verbose:   *verbose,
	}
	if _, err := tracegen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: cancel is called above
	}
}
