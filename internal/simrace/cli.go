package simrace

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/agentrace/arena/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "race_sim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the race simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Arena Race Simulator
====================

Drives complete human-versus-agent races against a running arena service.

Usage:
  go run cmd/race-sim/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -races int
        Number of races to drive (default 10)
  -workers int
        Number of concurrent workers (default 4)
  -timeout duration
        HTTP request timeout (default 30s)
  -human-delay duration
        Simulated human thinking time before submitting (default 500ms)
  -submission string
        Human submission text for text_entry tasks
  -poll duration
        Race status polling interval (default 250ms)
  -log string
        Log file for simulation output (default: race_sim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/race-sim/main.go

  # Simulate with custom parameters
  go run cmd/race-sim/main.go -races 50 -workers 8 -url http://localhost:8080

  # Simulate a slow human
  go run cmd/race-sim/main.go -races 5 -human-delay 5s -verbose
`)
}
