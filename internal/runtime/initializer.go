package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/manifest"
)

// EnvFileName is an optional dotenv file at the runtime root whose variables
// are passed to the entrypoint.
const EnvFileName = "runtime.env"

// DirInitializer initializes the runtime installed in Root.
type DirInitializer struct {
	Root   string
	Signer string
}

// Initialize re-reads and verifies the manifest, checks the entrypoint and
// platform, and returns the runtime handle. Failures are
// failure.KindRuntimeInit errors.
func (d *DirInitializer) Initialize(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.Wrap(failure.KindRuntimeInit, "initialize", err)
	}

	m, err := manifest.Load(d.Root, d.Signer)
	if err != nil {
		return nil, failure.Wrap(failure.KindRuntimeInit, "load manifest", err)
	}

	if len(m.Platforms) > 0 {
		platform := goruntime.GOOS + "/" + goruntime.GOARCH
		if !slices.Contains(m.Platforms, platform) {
			return nil, failure.New(failure.KindRuntimeInit, "check platform",
				fmt.Sprintf("runtime %s does not support %s", m.Version, platform))
		}
	}

	entry := filepath.Join(d.Root, filepath.FromSlash(m.Entrypoint))
	info, err := os.Stat(entry)
	if err != nil {
		return nil, failure.Wrap(failure.KindRuntimeInit, "stat entrypoint", err)
	}
	if !info.Mode().IsRegular() {
		return nil, failure.New(failure.KindRuntimeInit, "stat entrypoint", entry+" is not a regular file")
	}

	env := map[string]string{}
	if _, err := os.Stat(filepath.Join(d.Root, EnvFileName)); err == nil {
		env, err = godotenv.Read(filepath.Join(d.Root, EnvFileName))
		if err != nil {
			return nil, failure.Wrap(failure.KindRuntimeInit, "read "+EnvFileName, err)
		}
	}

	return &Handle{
		Root:          d.Root,
		Version:       m.Version,
		Entrypoint:    entry,
		Env:           env,
		Manifest:      m,
		InitializedAt: time.Now(),
	}, nil
}
