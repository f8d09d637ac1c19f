package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/earn-bid/pkg/app"
	"github.com/chainsafe/earn-bid/pkg/app/bidder"
	"github.com/chainsafe/earn-bid/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = bidder.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "earn-bid server failed: %v\n", err)
		os.Exit(1)
	}
}
