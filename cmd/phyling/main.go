package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/phyling/internal/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, cmd.ErrorMessage(err))
		os.Exit(cmd.ExitCode(err))
	}
}
