package cli

import (
	"fmt"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/branding"
	"github.com/zhuyongyong/crosswalk/internal/config"
	"github.com/zhuyongyong/crosswalk/internal/download"
	"github.com/zhuyongyong/crosswalk/internal/extract"
	"github.com/zhuyongyong/crosswalk/internal/install"
	"github.com/zhuyongyong/crosswalk/internal/metrics"
	"github.com/zhuyongyong/crosswalk/internal/readiness"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
	"github.com/zhuyongyong/crosswalk/internal/store"
	"github.com/zhuyongyong/crosswalk/internal/version"
)

// session is the readiness machine and its collaborators, wired from the
// loaded settings.
type session struct {
	settings *config.Settings
	layout   runtime.Layout
	registry *prom.Registry
	machine  *readiness.Machine
}

// newSession builds a machine reporting to host. With autoAcquire set, the
// machine acquires the runtime without waiting for the host to ask.
func newSession(s *config.Settings, log *zap.Logger, host readiness.Host, autoAcquire bool) (*session, error) {
	layout := layoutFor(s)
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	mux := download.NewMux()
	mux.Handle(download.NewHTTPManager(download.WithHTTPLogger(log)), "http", "https")
	if s.S3.Endpoint != "" {
		s3m, err := download.NewS3Manager(download.S3Config{
			Endpoint:  s.S3.Endpoint,
			Region:    s.S3.Region,
			AccessKey: s.S3.AccessKey,
			SecretKey: s.S3.SecretKey,
			UseSSL:    s.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle(s3m, "s3")
	}

	downloads := config.DownloadsDir()
	if err := os.MkdirAll(downloads, 0755); err != nil {
		return nil, fmt.Errorf("creating downloads directory: %w", err)
	}
	downloader := download.NewCoordinator(mux, downloads,
		download.WithInterval(s.PollInterval),
		download.WithMaxPausedSamples(s.PausedSamples()),
		download.WithMaxRunningSamples(s.RunningSamples()),
		download.WithChecksum(s.Checksum),
		download.WithLogger(log),
		download.WithRecorder(rec))

	listing := s.StoreURL
	if listing == "" {
		listing = store.DefaultListing(branding.RuntimePackage())
	}
	watcher, err := store.NewWatcher(s.RuntimeDir, store.WithLogger(log))
	if err != nil {
		return nil, err
	}

	m := readiness.New(host,
		runtime.NewDirProbe(layout),
		&runtime.DirInitializer{Root: s.RuntimeDir, Signer: s.Signer},
		readiness.WithDownloader(downloader),
		readiness.WithInstaller(&install.ArchiveInstaller{
			Root:      s.RuntimeDir,
			MarkerDir: layout.MarkerDir,
			Signer:    s.Signer,
			Log:       log,
		}),
		readiness.WithDecompressor(extract.NewCoordinator(extract.WithLogger(log), extract.WithRecorder(rec))),
		readiness.WithStore(&store.Opener{Listing: listing}, listing, watcher),
		readiness.WithURLSource(config.SettingsURL()),
		readiness.WithRuntimeDir(s.RuntimeDir),
		readiness.WithMarker(layout.MarkerDir, s.RequiredVersion),
		readiness.WithAutoAcquire(autoAcquire),
		readiness.WithLogger(log),
		readiness.WithRecorder(rec))

	return &session{settings: s, layout: layout, registry: reg, machine: m}, nil
}

func layoutFor(s *config.Settings) runtime.Layout {
	return runtime.Layout{
		Root:            s.RuntimeDir,
		BundledArchive:  s.BundledArchive,
		MarkerDir:       config.StateDir(),
		RequiredVersion: s.RequiredVersion,
		Signer:          s.Signer,
	}
}

// loadSettings decodes the settings and checks what every command needs.
func loadSettings() (*config.Settings, error) {
	s, err := config.Current()
	if err != nil {
		return nil, err
	}
	if s.RequiredVersion == "" {
		return nil, fmt.Errorf("no required runtime version; run `%s config set %s <version>` or set %s",
			branding.CLIName(), config.KeyRequiredVersion, branding.EnvVar(config.KeyRequiredVersion))
	}
	if err := version.Validate(s.RequiredVersion); err != nil {
		return nil, fmt.Errorf("%s: %w", config.KeyRequiredVersion, err)
	}
	return s, nil
}
