// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// noctisd is the chain daemon: it opens or bootstraps the block store,
// wires the core façade to the P2P relay and the RPC facade, and runs
// until a termination signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/noctis-project/noctis/config"
	"github.com/noctis-project/noctis/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "noctisd: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	logFile, errLogFile := cfg.LogFiles()
	logger.InitLogRotators(logFile, errLogFile)
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	node, err := newNoctisd(cfg)
	if err != nil {
		return err
	}
	if err := node.start(); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	log.Infof("noctisd: received %s, shutting down", sig)

	return node.stop()
}
