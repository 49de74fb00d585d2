package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary is the end-of-run tally printed by PrintSummary.
type Summary struct {
	Mode       string
	Groups     int
	Pairs      int64
	Copied     int64
	Verified   int64
	Bytes      int64
	Mismatches int64
	Failures   int64
	Duration   time.Duration
}

// PrintSummary writes a human-readable summary. In quiet mode nothing is
// printed for a clean run.
func PrintSummary(w io.Writer, s Summary, quiet bool) {
	if quiet && s.Mismatches == 0 && s.Failures == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== %s summary ===\n", s.Mode)
	fmt.Fprintf(w, "Groups: %d\n", s.Groups)
	fmt.Fprintf(w, "Pairs: %d\n", s.Pairs)
	if s.Copied > 0 {
		fmt.Fprintf(w, "Copied: %d (%s)\n", s.Copied, humanize.Bytes(uint64(s.Bytes)))
	}
	if s.Verified > 0 {
		fmt.Fprintf(w, "Verified: %d\n", s.Verified)
	}
	if s.Mismatches > 0 {
		fmt.Fprintf(w, "Mismatches: %d\n", s.Mismatches)
	}
	if s.Failures > 0 {
		fmt.Fprintf(w, "Failures: %d\n", s.Failures)
	}
	fmt.Fprintf(w, "Duration: %s\n", s.Duration.Round(time.Millisecond))
}
