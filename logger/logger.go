// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires up the per-subsystem loggers used across the
// node: one btclog.Backend teed to stdout and a rotated log file.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter outputs to both standard output and the write-end pipe of an
// initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend. Loggers must
// not be used before InitLogRotators has run.
var (
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator and ErrLogRotator are the logging outputs. They should
	// be closed on application shutdown.
	LogRotator    *rotator.Rotator
	ErrLogRotator *rotator.Rotator

	bchnLog = backendLog.Logger("BCHN")
	execLog = backendLog.Logger("EXEC")
	ldgrLog = backendLog.Logger("LDGR")
	mpolLog = backendLog.Logger("MPOL")
	hostLog = backendLog.Logger("HOST")
	storLog = backendLog.Logger("STOR")
	cnfgLog = backendLog.Logger("CNFG")
	nodeLog = backendLog.Logger("NODE")

	initiated = false
)

// subsystemLoggers maps each subsystem tag to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"BCHN": bchnLog,
	"EXEC": execLog,
	"LDGR": ldgrLog,
	"MPOL": mpolLog,
	"HOST": hostLog,
	"STOR": storLog,
	"CNFG": cnfgLog,
	"NODE": nodeLog,
}

// BlockChain returns the blockchain subsystem logger.
func BlockChain() btclog.Logger { return bchnLog }

// Executor returns the executor subsystem logger.
func Executor() btclog.Logger { return execLog }

// Ledger returns the ledger subsystem logger.
func Ledger() btclog.Logger { return ldgrLog }

// MemPool returns the mempool subsystem logger.
func MemPool() btclog.Logger { return mpolLog }

// HostManager returns the host-manager subsystem logger.
func HostManager() btclog.Logger { return hostLog }

// Store returns the persistent-store subsystem logger.
func Store() btclog.Logger { return storLog }

// Config returns the config-parsing subsystem logger.
func Config() btclog.Logger { return cnfgLog }

// Node returns the top-level node wiring logger.
func Node() btclog.Logger { return nodeLog }

// InitLogRotators initializes the logging rotators to write logs to
// logFile and errLogFile, creating roll files alongside them. It must be
// called before any subsystem logger is used.
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

// SetLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemTag string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemTag]
	if !ok {
		return
	}
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
