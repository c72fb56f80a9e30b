package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuyongyong/crosswalk/internal/download"
	"github.com/zhuyongyong/crosswalk/internal/readiness"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

type fakeController struct {
	calls []string
}

func (c *fakeController) AcquireLibrary() { c.calls = append(c.calls, "acquire") }
func (c *fakeController) RetryDownload() { c.calls = append(c.calls, "retry") }
func (c *fakeController) CancelAcquisition() { c.calls = append(c.calls, "cancel") }

func newTestHost(input string, yes bool) (*consoleHost, *fakeController, *bytes.Buffer) {
	var out bytes.Buffer
	ctl := &fakeController{}
	h := newConsoleHost(&out, strings.NewReader(input), yes)
	h.ctl = ctl
	return h, ctl, &out
}

func TestConsoleHost_OfferAcquire(t *testing.T) {
	tests := []struct {
		name  string
		input string
		yes   bool
		want  []string
	}{
		{"assume yes", "", true, []string{"acquire"}},
		{"enter accepts", "\n", false, []string{"acquire"}},
		{"explicit yes", "yes\n", false, []string{"acquire"}},
		{"no cancels", "n\n", false, []string{"cancel"}},
		{"closed input accepts", "", false, []string{"acquire"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ctl, out := newTestHost(tt.input, tt.yes)
			h.HandleOutcome(readiness.OlderVersion{Installed: "1.0", Required: "2.0"})
			assert.Equal(t, tt.want, ctl.calls)
			assert.Contains(t, out.String(), "Runtime 1.0 is older than the required 2.0.")
		})
	}
}

func TestConsoleHost_RetryBudget(t *testing.T) {
	h, ctl, out := newTestHost("", true)
	failed := readiness.DownloadFailed{
		Outcome: download.OutcomeRunningTimeout,
		Message: "download failed: time-out",
	}
	for i := 0; i < 4; i++ {
		h.HandleOutcome(failed)
	}
	assert.Equal(t, []string{"retry", "retry", "retry", "cancel"}, ctl.calls)
	assert.Contains(t, out.String(), "Download failed: time-out.")
}

func TestConsoleHost_Passive(t *testing.T) {
	h, ctl, _ := newTestHost("", false)
	h.passive = true

	h.HandleOutcome(readiness.NotFound{})
	h.HandleOutcome(readiness.InstallFailed{Err: errors.New("bad package")})
	h.HandleOutcome(readiness.StoreUnavailable{Err: errors.New("no handler")})
	assert.Empty(t, ctl.calls)
}

func TestConsoleHost_StoreUnavailableCancels(t *testing.T) {
	h, ctl, _ := newTestHost("", true)
	h.HandleOutcome(readiness.StoreUnavailable{Err: errors.New("no handler")})
	assert.Equal(t, []string{"cancel"}, ctl.calls)
}

func TestConsoleHost_Ready(t *testing.T) {
	h, _, out := newTestHost("", true)
	h.HandleOutcome(readiness.Ready{Handle: &runtime.Handle{Version: "22.52.561.4"}})
	require.NotNil(t, h.ready)
	assert.Equal(t, "22.52.561.4", h.ready.Handle.Version)
	assert.Contains(t, out.String(), "Runtime 22.52.561.4 is ready.")
}

func TestConsoleHost_Progress(t *testing.T) {
	h, _, _ := newTestHost("", true)

	line, ok := h.progress(0, 4<<20)
	require.True(t, ok)
	assert.Equal(t, "  0 B / 4.0 MiB (0%)", line)

	_, ok = h.progress(100<<10, 4<<20)
	assert.False(t, ok, "same decile")

	line, ok = h.progress(2<<20, 4<<20)
	require.True(t, ok)
	assert.Equal(t, "  2.0 MiB / 4.0 MiB (50%)", line)

	_, ok = h.progress(10, -1)
	assert.False(t, ok, "unknown total")
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "", capitalize(""))
	assert.Equal(t, "Download failed", capitalize("download failed"))
}
