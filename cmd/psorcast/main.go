package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"psorcast/internal/services"
)

func main() {
	cmd, ctx := newRootCommand()
	err := cmd.Execute()
	ctx.close()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", services.Classify(err), err)
		}
		os.Exit(1)
	}
}
