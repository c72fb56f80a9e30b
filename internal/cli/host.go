package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/zhuyongyong/crosswalk/internal/readiness"
)

// controller is the part of the machine the console host drives.
type controller interface {
	AcquireLibrary()
	RetryDownload()
	CancelAcquisition()
}

// consoleHost prints outcomes and answers the machine's questions by
// prompting, or with yes when assumeYes is set. A passive host only prints
// and leaves acquisition to the machine.
type consoleHost struct {
	out        io.Writer
	in         *bufio.Scanner
	assumeYes  bool
	passive    bool
	maxRetries int

	ctl     controller
	retries int
	lastPct int64
	ready   *readiness.Ready
}

func newConsoleHost(out io.Writer, in io.Reader, assumeYes bool) *consoleHost {
	return &consoleHost{
		out:        out,
		in:         bufio.NewScanner(in),
		assumeYes:  assumeYes,
		maxRetries: 3,
		lastPct:    -1,
	}
}

func (h *consoleHost) HandleOutcome(o readiness.Outcome) {
	switch o := o.(type) {
	case readiness.NotFound:
		fmt.Fprintln(h.out, "Runtime is not installed.")
		h.offerAcquire()
	case readiness.OlderVersion:
		fmt.Fprintf(h.out, "Runtime %s is older than the required %s.\n", o.Installed, o.Required)
		h.offerAcquire()
	case readiness.NewerVersion:
		fmt.Fprintf(h.out, "Runtime %s is newer than this host supports (%s). Update the host application.\n",
			o.Installed, o.Required)
	case readiness.SignatureError:
		fmt.Fprintf(h.out, "Runtime failed verification: %v\n", o.Err)
	case readiness.RuntimeError:
		fmt.Fprintf(h.out, "Runtime error: %v\n", o.Err)
	case readiness.Compressed:
		fmt.Fprintf(h.out, "Decompressing bundled runtime %s...\n", o.Archive)
	case readiness.DecompressFinished:
		if o.Err != nil {
			fmt.Fprintf(h.out, "Decompression failed after %d entries: %v\n", o.Entries, o.Err)
		}
	case readiness.DownloadStarted:
		h.lastPct = -1
		fmt.Fprintf(h.out, "Downloading %s...\n", o.URL)
	case readiness.DownloadProgress:
		if line, ok := h.progress(o.SoFar, o.Total); ok {
			fmt.Fprintln(h.out, line)
		}
	case readiness.DownloadFailed:
		fmt.Fprintln(h.out, capitalize(o.Message)+".")
		h.offerRetry()
	case readiness.Installing:
		fmt.Fprintln(h.out, "Installing...")
	case readiness.InstallFailed:
		fmt.Fprintf(h.out, "Install failed: %v\n", o.Err)
		h.offerRetry()
	case readiness.StoreOpened:
		fmt.Fprintf(h.out, "Opened %s. Waiting for the runtime to be installed (Ctrl-C to stop)...\n", o.Listing)
	case readiness.StoreUnavailable:
		fmt.Fprintf(h.out, "Cannot acquire the runtime: %v\n", o.Err)
		if !h.passive {
			h.ctl.CancelAcquisition()
		}
	case readiness.Cancelled:
		fmt.Fprintln(h.out, "Cancelled.")
	case readiness.Ready:
		h.ready = &o
		fmt.Fprintf(h.out, "Runtime %s is ready.\n", o.Handle.Version)
	}
}

func (h *consoleHost) offerAcquire() {
	if h.passive {
		return
	}
	if h.confirm("Acquire the runtime now?") {
		h.ctl.AcquireLibrary()
		return
	}
	h.ctl.CancelAcquisition()
}

func (h *consoleHost) offerRetry() {
	if h.passive {
		return
	}
	if h.retries < h.maxRetries && h.confirm("Retry?") {
		h.retries++
		h.ctl.RetryDownload()
		return
	}
	h.ctl.CancelAcquisition()
}

// confirm asks a Y/n question. An empty answer or closed input means yes.
func (h *consoleHost) confirm(question string) bool {
	if h.assumeYes {
		return true
	}
	fmt.Fprintf(h.out, "? %s (Y/n) ", question)
	if !h.in.Scan() {
		fmt.Fprintln(h.out)
		return true
	}
	answer := strings.TrimSpace(strings.ToLower(h.in.Text()))
	return answer == "" || answer == "y" || answer == "yes"
}

// progress formats a progress line every 10 percent.
func (h *consoleHost) progress(soFar, total int64) (string, bool) {
	if total <= 0 {
		return "", false
	}
	pct := soFar * 100 / total
	if h.lastPct >= 0 && pct/10 == h.lastPct/10 {
		return "", false
	}
	h.lastPct = pct
	return fmt.Sprintf("  %s / %s (%d%%)", humanize.IBytes(uint64(soFar)), humanize.IBytes(uint64(total)), pct), true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
