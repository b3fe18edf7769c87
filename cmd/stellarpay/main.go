package main

import (
	"fmt"
	"io"
	"os"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "propose":
		return runProposeCmd(args[2:], stdout, stderr)
	case "approve":
		return runApproveCmd(args[2:], stdout, stderr)
	case "execute":
		return runExecuteCmd(args[2:], stdout, stderr)
	case "show":
		return runShowCmd(args[2:], stdout, stderr)
	case "list":
		return runListCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "credit":
		return runCreditCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "stellarpay %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "stellarpay: quorum-gated payroll disbursement")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  stellarpay <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "DAEMON:")
	printCommand(w, "serve", "Run the HTTP API (configured by STELLARPAY_* env)")
	printCommand(w, "credit", "Credit the custodian on the postgres ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "PROPOSALS:")
	printCommand(w, "propose", "Create a payroll batch (--proposer, --pay payee=amount ...)")
	printCommand(w, "approve", "Approve a proposal (--id, --approver)")
	printCommand(w, "execute", "Execute an approved proposal (--id, --executor, --asset)")
	printCommand(w, "show", "Print one proposal (--id)")
	printCommand(w, "list", "Print every proposal")
	printCommand(w, "health", "Check server health")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "KEYS:")
	printCommand(w, "token", "Issue a JWT for an identity (--sub)")
	printCommand(w, "keygen", "Generate an Ed25519 signing identity")
	printCommand(w, "version", "Print the version")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}
