package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-dev/breeze/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╗ ┬─┐┌─┐┌─┐┌─┐┌─┐
  ╠╩╗├┬┘├┤ ├┤ ┌─┘├┤
  ╚═╝┴└─└─┘└─┘└─┘└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "breeze",
		Short: "A development-time HTTP serving engine",
		Long: `Breeze serves a workspace during development.

Point it at a directory and it serves the files, proxies API
prefixes to your backend, falls back to the app shell for
client-side routes, and traces every request. Features:

  • Static serving from one or more mounted directories
  • Prefix proxying with path stripping and forwarded headers
  • SPA fallback with Accept negotiation
  • Color-coded request tracing with glob filters
  • Live reload and config watching`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		renderError(err)
		os.Exit(1)
	}
}

// renderError prints a structured error with its detail and suggestion, or
// a plain line for anything else.
func renderError(err error) {
	var be *errors.Error
	if !stderrors.As(err, &be) {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		return
	}

	errorMsg("%s", be.Error())
	if be.Detail != "" {
		info("%s", be.Detail)
	}
	if be.Suggestion != "" {
		info("Hint: %s", be.Suggestion)
	}
}

// printBanner prints the Breeze ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
