package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/agentrace/arena/internal/simrace"
)

// Default configuration constants.
const (
	defaultNumRaces   = 10
	defaultWorkers    = 4
	defaultTimeout    = 30 * time.Second
	defaultHumanDelay = 500 * time.Millisecond
	defaultPollEvery  = 250 * time.Millisecond
	defaultSimTimeout = 10 * time.Minute
	defaultSubmission = "Captain America"
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numRaces   = flag.Int("races", defaultNumRaces, "Number of races to drive")
		workers    = flag.Int("workers", defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		humanDelay = flag.Duration("human-delay", defaultHumanDelay, "Simulated human thinking time before submitting")
		submission = flag.String("submission", defaultSubmission, "Human submission text for text_entry tasks")
		pollEvery  = flag.Duration("poll", defaultPollEvery, "Race status polling interval")
		logFile    = flag.String("log", "", "Log file for simulation output (default: race_sim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simrace.ShowHelp()
		return
	}

	// Setup logging
	if err := simrace.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultSimTimeout)
	defer cancel()

	// Create simulation configuration
	config := &simrace.Config{
		BaseURL:    *baseURL,
		NumRaces:   *numRaces,
		Workers:    *workers,
		Timeout:    *timeout,
		HumanDelay: *humanDelay,
		Submission: *submission,
		PollEvery:  *pollEvery,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the simulation
	if err := simrace.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
