package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Args are the command line arguments. Grounded on the donor's args.go,
// trimmed of the TS6-linking flags (listen-fd, server-name, sid) that no
// longer apply and given an operator-facing --oper-cost knob instead.
type Args struct {
	ConfigFile     string
	BcryptCost     int
	DisableHashing bool
}

func getArgs() *Args {
	configFile := flag.String("conf", "", "Configuration file.")
	bcryptCost := flag.Int(
		"oper-cost",
		0,
		"bcrypt cost to use when hashing operator passwords (0 selects the package default).",
	)
	disableHashing := flag.Bool(
		"no-hashing",
		false,
		"Disable the password hashing provider (also disables SASL PLAIN and OPER).",
	)

	flag.Parse()

	if len(*configFile) == 0 {
		printUsage(fmt.Errorf("you must provide a configuration file"))
		return nil
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		printUsage(fmt.Errorf(
			"unable to determine path to the configuration file: %s", err))
		return nil
	}

	return &Args{
		ConfigFile:     configPath,
		BcryptCost:     *bcryptCost,
		DisableHashing: *disableHashing,
	}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)                           // nolint: gas
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <arguments>\n", os.Args[0]) // nolint: gas
	flag.PrintDefaults()
}
