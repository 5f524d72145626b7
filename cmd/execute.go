// Package cmd provides the formulary CLI.
//
// Commands:
//   - improve: run the self-improvement batch over the test subjects
//   - stats: show corpus and weight table state
//   - version: show version information
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the formulary CLI.
func Execute() error {
	// Initialize logger once at entry point.
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		return runImprove(nil)
	}

	switch os.Args[1] {
	case "improve":
		return runImprove(os.Args[2:])
	case "stats":
		return runStats()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// checkRequiredEnv verifies the Gemini credential is present before
// any component that needs the oracle starts up.
func checkRequiredEnv() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Formulary needs a Gemini API key for evidence grading and reflection.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")

		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Formulary - evidence-tuned mineral formulation for sleep support")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  formulary                      Run the improvement batch (default)")
	fmt.Println("  formulary improve [-subjects f] Run the improvement batch")
	fmt.Println("  formulary stats                Show corpus and weight table state")
	fmt.Println("  formulary --version            Show version information")
	fmt.Println("  formulary --help               Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -subjects <file>   JSON file of test subjects (default: built-in cases)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  NCBI_API_KEY       Optional: raises the PubMed Central rate limit")
	fmt.Println("  NCBI_EMAIL         Optional: contact email sent to NCBI")
	fmt.Println("  DATABASE_URL       Optional: overrides the Postgres settings")
	fmt.Println("  DEBUG              Optional: enable debug logging")
}
