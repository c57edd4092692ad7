package main

import (
	"context"
	"fmt"
	"os"

	"github.com/keboola/go-barrier/internal/pkg/env"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/command"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

func main() {
	cmd := command.New(env.FromOs(), os.Stdout, os.Stderr) // nolint:forbidigo
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errors.PrefixError(err, "fatal error").Error()) // nolint:forbidigo
		os.Exit(1)
	}
}
