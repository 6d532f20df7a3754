package main

import (
	"context"
	"fmt"
	"os"

	"github.com/PeladoCollado/rpcload/orchestrator/app"
	"github.com/PeladoCollado/rpcload/orchestrator/logger"
)

func main() {
	// SIGINT and SIGTERM are handled inside the run so an interrupted ramp still exports
	// its finished rows.
	if err := app.NewCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rpcload: %v\n", err)
		logger.Logger.Errorw("Unable to run load test", "error", err)
		os.Exit(1)
	}
}
