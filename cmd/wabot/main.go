package main

import (
	"fmt"
	"os"

	"github.com/actiomidia/projeto-bot-whatsapp/cmd/wabot/cli"
)

// Set via -ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
