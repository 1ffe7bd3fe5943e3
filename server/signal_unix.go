//go:build unix

package server

import (
	"os"
	"syscall"
)

var (
	shutdownSignals   = []os.Signal{os.Interrupt, syscall.SIGTERM}
	diagnosticSignals = []os.Signal{syscall.SIGUSR1}
)
