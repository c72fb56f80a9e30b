// Package store covers the store fallback used when no download URL is
// configured: opening the runtime's store listing and watching for the
// runtime to appear once the user installed it from there.
package store

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/zhuyongyong/crosswalk/internal/failure"
)

// DefaultListing returns the store listing URL for a runtime package.
func DefaultListing(pkg string) string {
	return "market://details?id=" + pkg
}

// Opener hands the listing URL to the platform's URL handler.
type Opener struct {
	Listing string
	// Command builds the handler invocation. Defaults to xdg-open, open or
	// rundll32 depending on the OS.
	Command func(ctx context.Context, url string) *exec.Cmd
}

// Open launches the handler and waits for it to exit. A missing listing or
// handler is a failure.KindConfigurationMissing error.
func (o *Opener) Open(ctx context.Context) error {
	listing := strings.TrimSpace(o.Listing)
	if listing == "" {
		return failure.New(failure.KindConfigurationMissing, "open store", "no store listing configured")
	}

	command := o.Command
	if command == nil {
		command = platformCommand
	}
	cmd := command(ctx, listing)
	if cmd == nil {
		return failure.New(failure.KindConfigurationMissing, "open store", "no url handler for "+runtime.GOOS)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return failure.Wrap(failure.KindConfigurationMissing, "open store", err)
		}
		return failure.Wrap(failure.KindConfigurationMissing, "open store",
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return nil
}

func platformCommand(ctx context.Context, url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", url)
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.CommandContext(ctx, "xdg-open", url)
	default:
		return nil
	}
}
