package lib

import (
	"fmt"
	"io"
	"os"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Bail prints an error for the user and exits with nonzero exit code.
func Bail(err error) {
	bail(os.Stderr, err)
	os.Exit(1)
}

func bail(w io.Writer, err error) {
	errs := []error{err}
	if agg, ok := trace.Unwrap(err).(trace.Aggregate); ok {
		errs = agg.Errors()
	}
	for _, err := range errs {
		log.Debug(trace.DebugReport(err))
		switch {
		case IsCanceled(err):
			fmt.Fprintln(w, "Interrupted")
		case IsDeadline(err):
			fmt.Fprintf(w, "ERROR: %s\nThe marketplace did not answer in time, try again later.\n", trace.UserMessage(err))
		default:
			fmt.Fprintf(w, "ERROR: %s\n", trace.UserMessage(err))
		}
	}
}
