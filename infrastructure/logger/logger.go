// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires the module's subsystem loggers onto a single
// logs.Backend that writes to stdout and a rotating log file.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrick/logrotate/rotator"
	"github.com/noctis-project/noctis/infrastructure/logs"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// errLogWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized error log rotator.
type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it write to the backend.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling InitLogRotators.
var (
	backendLog = logs.NewBackend([]*logs.BackendWriter{
		asWriter(logs.NewAllLevelsBackendWriter(logWriter{})),
		asWriter(logs.NewErrorBackendWriter(errLogWriter{})),
	})

	// LogRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	LogRotator *rotator.Rotator
	// ErrLogRotator mirrors LogRotator for error-and-above lines only.
	ErrLogRotator *rotator.Rotator

	coreLog = backendLog.Logger("CORE")
	vldtLog = backendLog.Logger("VLDT")
	sgmtLog = backendLog.Logger("SGMT")
	bstrLog = backendLog.Logger("BSTR")
	mpolLog = backendLog.Logger("MPOL")
	cnssLog = backendLog.Logger("CNSS")
	evtbLog = backendLog.Logger("EVTB")
	cnfgLog = backendLog.Logger("CNFG")
	rpcfLog = backendLog.Logger("RPCF")
	p2pLog  = backendLog.Logger("P2P")

	initiated = false
)

func asWriter(w logs.BackendWriter) *logs.BackendWriter { return &w }

// SubsystemTags is an enum of all subsystem tags.
var SubsystemTags = struct {
	CORE, VLDT, SGMT, BSTR, MPOL, CNSS, EVTB, CNFG, RPCF, P2P string
}{
	CORE: "CORE",
	VLDT: "VLDT",
	SGMT: "SGMT",
	BSTR: "BSTR",
	MPOL: "MPOL",
	CNSS: "CNSS",
	EVTB: "EVTB",
	CNFG: "CNFG",
	RPCF: "RPCF",
	P2P:  "P2P",
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]*logs.Logger{
	SubsystemTags.CORE: coreLog,
	SubsystemTags.VLDT: vldtLog,
	SubsystemTags.SGMT: sgmtLog,
	SubsystemTags.BSTR: bstrLog,
	SubsystemTags.MPOL: mpolLog,
	SubsystemTags.CNSS: cnssLog,
	SubsystemTags.EVTB: evtbLog,
	SubsystemTags.CNFG: cnfgLog,
	SubsystemTags.RPCF: rpcfLog,
	SubsystemTags.P2P:  p2pLog,
}

// Logger returns the logger associated with the given subsystem tag,
// creating nothing (all subsystems are pre-registered at init time).
func Logger(tag string) *logs.Logger {
	if l, ok := subsystemLoggers[tag]; ok {
		return l
	}
	return coreLog
}

// InitLogRotators initializes the logging rotators to write logs to
// logFile, errLogFile, and create roll files in the same directory.
// It must be called before any logger is used.
func InitLogRotators(logFile, errLogFile string) {
	initiated = true
	LogRotator = initLogRotator(logFile)
	ErrLogRotator = initLogRotator(errLogFile)
}

func initLogRotator(logFile string) *rotator.Rotator {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	return r
}

// SetLogLevel sets the logging level for the provided subsystem.
// Invalid subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := logs.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported
// subsystems for logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels attempts to parse the specified debug level
// and set the levels accordingly. An appropriate error is returned if
// anything is invalid.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}

		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
