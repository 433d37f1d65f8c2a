package deps

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
)

// UISpinner wraps spinner for terminal feedback during checks. In
// verbose mode it degrades to plain log lines so spinner control
// codes never interleave with debug output.
type UISpinner struct {
	sp      *spinner.Spinner
	verbose bool
}

// NewUISpinner creates and starts a spinner with the given message.
func NewUISpinner(verbose bool, message string) *UISpinner {
	s := &UISpinner{verbose: verbose}

	if !verbose {
		s.sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.sp.Prefix = "  "
		s.sp.Suffix = " " + message
		s.sp.Start()
	} else {
		fmt.Printf("[DEBUG] %s\n", message)
	}

	return s
}

// Success stops the spinner and prints a success line.
func (s *UISpinner) Success(message string) {
	if !s.verbose && s.sp != nil {
		s.sp.Stop()
		fmt.Printf("\r\033[K  ✓ %s\n", message)
	} else if s.verbose {
		fmt.Printf("[DEBUG] ✓ %s\n", message)
	}
}

// Fail stops the spinner and prints an error line.
func (s *UISpinner) Fail(message string) {
	if !s.verbose && s.sp != nil {
		s.sp.Stop()
		fmt.Printf("\r\033[K  ✗ %s\n", message)
	} else if s.verbose {
		fmt.Printf("[DEBUG] ✗ %s\n", message)
	}
}

// Stop stops the spinner without printing anything.
func (s *UISpinner) Stop() {
	if !s.verbose && s.sp != nil {
		s.sp.Stop()
		fmt.Print("\r\033[K")
	}
}
