// Package config parses cmd/noctisd's command-line configuration,
// grounded on kasparov/kasparovd/config/config.go's
// flags.NewParser(activeConfig, ...)-plus-singleton shape, generalized
// from that daemon's single HTTP listen flag to the full set of knobs
// this module's component wiring needs: data/log directories, the
// RPC and P2P relay listen addresses, network selection, and the
// per-subsystem debug level string infrastructure/logger.ParseAndSetDebugLevels
// already knows how to parse.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

const (
	defaultRPCListen  = "0.0.0.0:8990"
	defaultP2PListen  = "0.0.0.0:8991"
	defaultDebugLevel = "info"
	appDirName        = ".noctisd"
	logFilename       = "noctisd.log"
	errLogFilename    = "noctisd_err.log"
)

// Config is the full set of command-line flags cmd/noctisd accepts.
type Config struct {
	DataDir   string `long:"datadir" description:"Directory to store the chain's block stores in"`
	LogDir    string `long:"logdir" description:"Directory to log output to"`
	RPCListen string `long:"rpclisten" description:"Address for rpcfacade's HTTP/websocket server to listen on"`
	P2PListen string `long:"p2plisten" description:"Address for the P2P relay's gRPC server to listen on"`

	TestNet bool `long:"testnet" description:"Use the test network"`

	DebugLevel string `long:"debuglevel" short:"d" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- Alternatively, level can be specified for a subsystem by prefixing with subsystem name, e.g. MPOL=trace,VLDT=debug"`

	MinimumFee      uint64 `long:"minrelayfee" description:"Minimum fee, in atomic units, a transaction must pay to be relayed and mined"`
	CoinbaseReserve uint64 `long:"coinbasereserve" description:"Bytes held back from the block size limit for the coinbase when the mempool admits and selects transactions"`

	NotificationCapacity int `long:"notificationbuffer" description:"Number of buffered events rpcfacade's websocket hub and the P2P relay each hold before a slow reader starts missing notifications" default:"64"`
}

// defaultDataDir returns ~/.noctisd, the same per-user application
// directory idiom the teacher's util.AppDataDir follows, without that
// helper's Windows/Roaming-profile branches (this exercise targets a
// single-platform deployment).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return appDirName
	}
	return filepath.Join(home, appDirName)
}

// Parse parses the process's command-line arguments into a Config,
// filling in defaults for anything the caller didn't set and deriving
// LogDir from DataDir when the caller left it blank.
func Parse() (*Config, error) {
	cfg := &Config{
		DataDir:    defaultDataDir(),
		RPCListen:  defaultRPCListen,
		P2PListen:  defaultP2PListen,
		DebugLevel: defaultDebugLevel,
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if ok := asFlagsError(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	return cfg, nil
}

// asFlagsError is errors.As spelled out without importing
// github.com/pkg/errors here too: go-flags's own error values are
// always *flags.Error already, never wrapped, so a plain type
// assertion is equivalent and keeps that import out of this file.
func asFlagsError(err error, target **flags.Error) bool {
	fe, ok := err.(*flags.Error)
	if !ok {
		return false
	}
	*target = fe
	return true
}

// LogFiles returns the absolute log and error-log paths InitLogRotators
// needs, rooted at LogDir.
func (c *Config) LogFiles() (logFile, errLogFile string) {
	return filepath.Join(c.LogDir, logFilename), filepath.Join(c.LogDir, errLogFilename)
}
