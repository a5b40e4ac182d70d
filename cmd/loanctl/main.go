package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygenCommand(args[1:], stdout, stderr)
	case "balance":
		return runBalanceCommand(args[1:], stdout, stderr)
	case "create":
		return runCreateCommand(args[1:], stdout, stderr)
	case "fund":
		return runFundCommand(args[1:], stdout, stderr)
	case "repay":
		return runRepayCommand(args[1:], stdout, stderr)
	case "cancel":
		return runCloseCommand("cancel", args[1:], stdout, stderr)
	case "default":
		return runCloseCommand("default", args[1:], stdout, stderr)
	case "show":
		return runShowCommand(args[1:], stdout, stderr)
	case "list":
		return runListCommand(args[1:], stdout, stderr)
	case "mine":
		return runMineCommand(args[1:], stdout, stderr)
	case "invest":
		return runInvestCommand(args[1:], stdout, stderr)
	case "stats":
		return runStatsCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: loanctl <command> [flags]

Commands:
  keygen   --out FILE                        write a new private key
  balance  [--key FILE | --address ADDR]     show a ledger balance
  create   --key FILE --amount N --purpose S --days N --rate PCT
  fund     --key FILE --loan ID --amount N
  repay    --key FILE --loan ID [--amount N] (defaults to the total due)
  cancel   --key FILE --loan ID
  default  --key FILE --loan ID
  show     --loan ID
  list                                       every loan
  mine     [--key FILE | --address ADDR]     loans you borrowed
  invest   [--key FILE | --address ADDR]     loans you funded
  stats                                      platform statistics

Common flags: --rpc URL, --backend rpc|evm, --contract ADDR, --chain-id N,
--decimals N, --redis ADDR, --timeout DURATION`)
}
