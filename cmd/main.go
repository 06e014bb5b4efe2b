package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carelattice/taxonomy-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start()

	// RUN_SERVER=false runs a worker-only process; the job loop started by
	// Start keeps going until a signal arrives.
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RUN_SERVER")), "false") {
		application.Log.Info("Worker-only process running", "http", "disabled")
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		return
	}

	application.Log.Info("Server listening", "addr", application.Cfg.HTTPAddr)
	if err := application.Run(application.Cfg.HTTPAddr); err != nil {
		application.Log.Error("Server failed", "error", err)
	}
}
