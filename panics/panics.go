package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/btcsuite/btclog"
)

// HandlePanic recovers a panic, logs it along with a stack trace, and
// exits the process. It is the recovery half of the pair used for fatal
// conditions the spec names explicitly: kv-store I/O failures and ledger
// arithmetic overflow, both of which indicate data-integrity loss rather
// than a retryable fault.
func HandlePanic(log btclog.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "could not handle a fatal error, exiting")
	case <-done:
	}
	os.Exit(1)
}

// GoroutineWrapperFunc returns a goroutine launcher that recovers panics
// through HandlePanic, for use by every background worker (chain-sync,
// gossip, ping, stats, cleanup).
func GoroutineWrapperFunc(log btclog.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// Exit writes reason to log, waits for it to flush, and exits. Used for
// the sync-retry-exceeded fatal path (spec §4.3/§7).
func Exit(log btclog.Logger, reason string) {
	done := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "could not exit gracefully")
	case <-done:
	}
	os.Exit(1)
}
