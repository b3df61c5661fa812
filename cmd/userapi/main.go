// Command userapi serves the read-only users API over HTTP and, optionally, gRPC.
package main

import (
	"log"

	"github.com/patric-chuzhbe/userapi/internal/app"
	"github.com/patric-chuzhbe/userapi/internal/logger"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		// The logger may not be initialized yet.
		log.Fatalf("failed to initialize: %v", err)
	}

	if err := theApp.Run(); err != nil {
		theApp.Close()
		logger.Log.Fatalw("server stopped with error", "error", err)
	}

	theApp.Close()
}
