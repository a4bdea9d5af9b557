package tracegen

import (
	"io"
	"os"
	"time"

	"github.com/okian/humancheck/pkg/logger"
)

// SetupLogging sends logs to stdout and to logFile. An empty logFile gets a
// timestamped name; "-" disables the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		return nil, err
	}
	if logFile == "-" {
		return io.NopCloser(nil), nil
	}
	if logFile == "" {
		logFile = "trace_gen_" + time.Now().Format("20060102_150405") + ".log"
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}

// ShowHelp prints usage information for the trace generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`humancheck trace generator
=========================

Generates labeled synthetic movement traces, optionally writes them as CSV and
submits them to a running humancheck service, then reports verdict accuracy.

Usage:
  trace-gen [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -sessions int      Number of traces to generate (default 200)
  -workers int       Number of concurrent submitters (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 10s)
  -wait duration     How long to wait for verdicts (default 30s)
  -out string        Directory for CSV traces (default: none)
  -seed int          Generator seed (default 1)
  -frames int        Control-loop frames per trace (default 240)
  -submit            Submit traces to the service (default true)
  -top int           Suspects to fetch after submission (default 20)
  -log string        Log file ("-" for none; default trace_gen_TIMESTAMP.log)
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  # Write 50 traces to ./traces without contacting a server
  trace-gen -sessions 50 -out traces -submit=false

  # Submit 1000 traces and report accuracy
  trace-gen -sessions 1000 -url http://localhost:9080
`)
}
