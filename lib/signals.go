package lib

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

type Terminable interface {
	// Shutdown attempts to gracefully terminate.
	Shutdown(context.Context) error
	// Close does a fast (force) termination.
	Close()
}

// ServeSignals shuts the app down on SIGTERM, and on SIGINT. A second SIGINT
// forces a fast shutdown.
func ServeSignals(app Terminable, shutdownTimeout time.Duration) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC,
		syscall.SIGTERM, // graceful shutdown
		syscall.SIGINT,  // graceful-then-fast shutdown
	)
	defer signal.Stop(sigC)
	serveSignals(app, sigC, shutdownTimeout)
}

func serveSignals(app Terminable, sigC <-chan os.Signal, shutdownTimeout time.Duration) {
	gracefulShutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Attempting graceful shutdown...")
		if err := app.Shutdown(ctx); err != nil {
			log.WithError(err).Info("Graceful shutdown failed. Trying fast shutdown...")
			app.Close()
		}
	}
	var alreadyInterrupted bool
	for sig := range sigC {
		switch sig {
		case syscall.SIGTERM:
			gracefulShutdown()
			return
		case syscall.SIGINT:
			if alreadyInterrupted {
				app.Close()
				return
			}
			go gracefulShutdown()
			alreadyInterrupted = true
		}
	}
}
