package main

import (
	"context"
	"fmt"
	"os"

	logginginfra "github.com/alexisbeaulieu97/flowtest/internal/infrastructure/logging"
)

func main() {
	app := NewBufferedAppContext()

	correlationID := logginginfra.GenerateCorrelationID()
	ctx := logginginfra.WithCorrelationID(context.Background(), correlationID)

	app.Logger.Info(ctx, "starting flowtest", "pid", os.Getpid())

	rootCmd := newRootCmd(app)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
