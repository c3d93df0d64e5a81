package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/chronohq/chrono/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
