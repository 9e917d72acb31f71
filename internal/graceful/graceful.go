package graceful

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func MakeSigintChan() chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

// WaitAndCancel blocks until SIGINT/SIGTERM, then cancels the given context
// so long-lived loops (balance watcher, attestation polls) unwind.
func WaitAndCancel(cancel context.CancelFunc, logger *logrus.Logger) {
	sig := <-MakeSigintChan()
	logger.Infof("received %s, shutting down", sig)
	cancel()
}
