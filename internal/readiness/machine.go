package readiness

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/deferred"
	"github.com/zhuyongyong/crosswalk/internal/download"
	"github.com/zhuyongyong/crosswalk/internal/extract"
	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/logging"
	"github.com/zhuyongyong/crosswalk/internal/marker"
	"github.com/zhuyongyong/crosswalk/internal/metrics"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

// ErrCancelled is returned by Run after acquisition was cancelled.
var ErrCancelled = errors.New("runtime acquisition cancelled")

// SettledError is returned by Run when the machine stopped in a status that
// it cannot fix on its own.
type SettledError struct {
	Status Status
	Err    error
}

func (e *SettledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("runtime not ready (%s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("runtime not ready (%s)", e.Status)
}

func (e *SettledError) Unwrap() error { return e.Err }

// Prober inspects the installed runtime.
type Prober interface {
	Inspect(ctx context.Context) runtime.Inspection
}

// Initializer performs the one-time runtime initialization.
type Initializer interface {
	Initialize(ctx context.Context) (*runtime.Handle, error)
}

// Downloader starts download tasks.
type Downloader interface {
	Start(ctx context.Context, url string, sink download.Sink) (*download.Task, error)
}

// Installer applies a downloaded package and records the local version.
type Installer interface {
	Install(ctx context.Context, artifact string) error
}

// Decompressor starts decompression tasks.
type Decompressor interface {
	Start(ctx context.Context, archive, dest string, sink extract.Sink) *extract.Task
}

// StoreOpener shows the runtime's store listing.
type StoreOpener interface {
	Open(ctx context.Context) error
}

// InstallWatcher notifies when the runtime may have been installed from the
// store.
type InstallWatcher interface {
	Start(ctx context.Context, onChange func()) error
	Stop() error
}

// URLSource yields the download URL. An empty URL selects the store.
type URLSource interface {
	URL() string
}

// Machine is the readiness state machine.
type Machine struct {
	host        Host
	prober      Prober
	initializer Initializer
	holder      *runtime.Holder
	queue       *deferred.Queue

	downloader   Downloader
	installer    Installer
	decompressor Decompressor
	store        StoreOpener
	watcher      InstallWatcher
	urls         URLSource

	runtimeDir      string
	markerDir       string
	requiredVersion string
	listing         string
	autoAcquire     bool

	log     *zap.Logger
	metrics metrics.Recorder
	box     *mailbox
	ctx     context.Context
	stop    context.CancelFunc

	// Control goroutine state.
	status         Status
	inspection     runtime.Inspection
	settledErr     error
	download       *download.Task
	downloadFailed bool
	installCancel  context.CancelFunc
	decompress     *extract.Task
	decompressGen  int
	storeCancel    context.CancelFunc
	watching       bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithDownloader sets the download coordinator.
func WithDownloader(d Downloader) Option {
	return func(m *Machine) { m.downloader = d }
}

// WithInstaller sets the installer applied after a successful download.
func WithInstaller(i Installer) Option {
	return func(m *Machine) { m.installer = i }
}

// WithDecompressor sets the coordinator for bundled archives.
func WithDecompressor(d Decompressor) Option {
	return func(m *Machine) { m.decompressor = d }
}

// WithStore sets the store fallback. listing is reported in StoreOpened;
// watcher may be nil, in which case the host re-checks on its own.
func WithStore(opener StoreOpener, listing string, watcher InstallWatcher) Option {
	return func(m *Machine) {
		m.store, m.listing, m.watcher = opener, listing, watcher
	}
}

// WithURLSource sets where the download URL comes from.
func WithURLSource(u URLSource) Option {
	return func(m *Machine) { m.urls = u }
}

// WithRuntimeDir sets the directory bundled archives are decompressed into.
func WithRuntimeDir(dir string) Option {
	return func(m *Machine) { m.runtimeDir = dir }
}

// WithMarker sets where the local version marker lives and the version it
// records after a decompression.
func WithMarker(dir, requiredVersion string) Option {
	return func(m *Machine) {
		m.markerDir, m.requiredVersion = dir, requiredVersion
	}
}

// WithHolder sets the holder the runtime handle is stored in.
func WithHolder(h *runtime.Holder) Option {
	return func(m *Machine) { m.holder = h }
}

// WithAutoAcquire makes the machine call AcquireLibrary itself after
// reporting NotFound or OlderVersion.
func WithAutoAcquire(auto bool) Option {
	return func(m *Machine) { m.autoAcquire = auto }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Machine) { m.metrics = r }
}

// New creates a Machine in StatusNotChecked.
func New(host Host, prober Prober, initializer Initializer, opts ...Option) *Machine {
	m := &Machine{
		host:        host,
		prober:      prober,
		initializer: initializer,
		box:         newMailbox(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.host == nil {
		m.host = HostFunc(func(Outcome) {})
	}
	if m.holder == nil {
		m.holder = &runtime.Holder{}
	}
	m.log = logging.OrNop(m.log)
	if m.metrics == nil {
		m.metrics = metrics.NoopRecorder{}
	}
	m.queue = deferred.NewQueue(m.log)
	m.ctx, m.stop = context.WithCancel(context.Background())
	return m
}

// Post schedules fn on the control goroutine. Safe for concurrent use.
func (m *Machine) Post(fn func()) {
	m.box.post(fn)
}

// Run executes posted closures until the machine settles or ctx is done.
// It returns nil once Ready, ErrCancelled after a cancel, a *SettledError for
// SignatureError, NewerVersion and RuntimeError, or ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	for {
		for _, fn := range m.box.take() {
			fn()
		}
		if done, err := m.settled(); done {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.box.signal:
		}
	}
}

func (m *Machine) settled() (bool, error) {
	if !m.status.settled() || m.busy() {
		return false, nil
	}
	switch m.status {
	case StatusReady:
		return true, nil
	case StatusCancelled:
		return true, ErrCancelled
	default:
		return true, &SettledError{Status: m.status, Err: m.settledErr}
	}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.status
}

// Inspection returns the result of the last runtime inspection.
func (m *Machine) Inspection() runtime.Inspection {
	return m.inspection
}

// IsReady reports whether the runtime is initialized.
func (m *Machine) IsReady() bool {
	return m.status == StatusReady
}

// Holder returns the holder of the runtime handle.
func (m *Machine) Holder() *runtime.Holder {
	return m.holder
}

// DeferObject queues obj for late initialization once Ready. Deferring after
// Ready panics; check IsReady first.
func (m *Machine) DeferObject(obj deferred.Object) {
	m.queue.DeferObject(obj)
}

// DeferInvocation queues call to run once Ready, after every deferred
// object. Deferring after Ready panics; check IsReady first.
func (m *Machine) DeferInvocation(call *deferred.Invocation) {
	m.queue.DeferInvocation(call)
}

// CheckReadiness inspects the runtime and reports the result. It is a no-op
// once Ready or Cancelled, and while a download, install, decompression or
// store open is in flight.
func (m *Machine) CheckReadiness() {
	if m.status == StatusReady || m.status == StatusCancelled || m.busy() {
		return
	}
	m.handleInspection(m.prober.Inspect(m.ctx))
}

func (m *Machine) handleInspection(insp runtime.Inspection) {
	m.inspection = insp
	status := statusFor(insp.Finding)
	m.setStatus(status)
	m.settledErr = insp.Err

	switch status {
	case StatusMatched:
		m.becomeReady()
	case StatusNotFound:
		m.emit(NotFound{})
		m.maybeAutoAcquire()
	case StatusOlderVersion:
		m.emit(OlderVersion{Installed: insp.Installed, Required: insp.Required})
		m.maybeAutoAcquire()
	case StatusNewerVersion:
		m.emit(NewerVersion{Installed: insp.Installed, Required: insp.Required})
	case StatusSignatureError:
		m.emit(SignatureError{Err: insp.Err})
	case StatusCompressed:
		m.emit(Compressed{Archive: insp.Archive})
		if m.status == StatusCompressed {
			m.startDecompress(insp.Archive)
		}
	default:
		m.emit(RuntimeError{Err: insp.Err})
	}
}

func (m *Machine) maybeAutoAcquire() {
	if m.autoAcquire {
		m.AcquireLibrary()
	}
}

// AcquireLibrary fetches the runtime after NotFound or OlderVersion: from the
// download URL when one is configured, otherwise through the store.
func (m *Machine) AcquireLibrary() {
	if !m.status.acquirable() {
		m.log.Debug("Acquire ignored", zap.Stringer("status", m.status))
		return
	}
	if m.acquiring() {
		return
	}
	m.acquire()
}

// RetryDownload starts a fresh download after DownloadFailed or
// InstallFailed.
func (m *Machine) RetryDownload() {
	if !m.downloadFailed || !m.status.acquirable() || m.acquiring() {
		m.log.Debug("Retry ignored", zap.Stringer("status", m.status))
		return
	}
	m.acquire()
}

func (m *Machine) acquire() {
	url := ""
	if m.urls != nil {
		url = m.urls.URL()
	}
	if url == "" {
		m.openStore()
		return
	}
	m.startDownload(url)
}

// CancelAcquisition cancels in-flight work and moves to Cancelled. The
// Cancelled outcome is delivered once; later calls are no-ops, as are calls
// once Ready.
func (m *Machine) CancelAcquisition() {
	if m.status == StatusReady || m.status == StatusCancelled {
		return
	}
	if m.download != nil {
		m.download.Cancel()
		m.download = nil
	}
	if m.installCancel != nil {
		m.installCancel()
		m.installCancel = nil
	}
	if m.decompress != nil {
		m.decompress.Cancel()
		m.decompress = nil
	}
	if m.storeCancel != nil {
		m.storeCancel()
		m.storeCancel = nil
	}
	m.stopWatching()

	m.setStatus(StatusCancelled)
	m.emit(Cancelled{})
}

// Reset cancels in-flight work, drops the runtime handle and returns the
// machine to StatusNotChecked with an empty deferred queue.
func (m *Machine) Reset() {
	m.stop()
	if m.download != nil {
		m.download.Cancel()
	}
	if m.decompress != nil {
		m.decompress.Cancel()
	}
	m.stopWatching()
	m.download, m.decompress, m.installCancel, m.storeCancel = nil, nil, nil, nil
	m.downloadFailed = false
	m.decompressGen++

	m.holder.Reset()
	m.queue = deferred.NewQueue(m.log)
	m.inspection, m.settledErr = runtime.Inspection{}, nil
	m.ctx, m.stop = context.WithCancel(context.Background())
	m.setStatus(StatusNotChecked)
}

func (m *Machine) busy() bool {
	return m.download != nil || m.installCancel != nil || m.decompress != nil || m.storeCancel != nil
}

func (m *Machine) acquiring() bool {
	return m.busy() || m.watching
}

func (m *Machine) setStatus(s Status) {
	if m.status != s {
		m.log.Info("Runtime status", zap.Stringer("from", m.status), zap.Stringer("status", s))
	}
	m.status = s
	m.metrics.IncStatus(s.String())
}

func (m *Machine) emit(o Outcome) {
	m.host.HandleOutcome(o)
}

// becomeReady initializes the runtime, drains the deferred queue and reports
// Ready.
func (m *Machine) becomeReady() {
	if m.storeCancel != nil {
		m.storeCancel()
		m.storeCancel = nil
	}
	m.stopWatching()

	h, err := m.initializer.Initialize(m.ctx)
	if err == nil && h == nil {
		err = errors.New("initializer returned no handle")
	}
	if err != nil {
		m.initFailed(err)
		return
	}
	if err := m.holder.Init(h); err != nil {
		// The holder is shared and was initialized by an earlier machine.
		existing, _ := m.holder.Handle()
		m.log.Warn("Reusing runtime handle from an earlier initialization",
			zap.String("version", existing.Version), zap.String("root", existing.Root))
		h = existing
	}

	m.setStatus(StatusReady)
	stats, drainErr := m.queue.Drain()
	m.metrics.AddDeferredDrained(stats.Objects, stats.Invocations)
	if drainErr != nil {
		m.log.Warn("Deferred invocations failed", zap.Int("failed", stats.Failed), zap.Error(drainErr))
	}
	m.log.Info("Runtime ready", zap.String("version", h.Version), zap.String("root", h.Root))
	m.emit(Ready{Handle: h, Drained: stats, DrainErr: drainErr})
}

func (m *Machine) initFailed(err error) {
	if failure.KindOf(err) == "" {
		err = failure.Wrap(failure.KindRuntimeInit, "initialize runtime", err)
	}
	m.setStatus(StatusRuntimeError)
	m.settledErr = err
	m.emit(RuntimeError{Err: err})
}

// Download path.

func (m *Machine) startDownload(url string) {
	if m.downloader == nil {
		m.downloadFailed = true
		m.emit(DownloadFailed{
			Outcome: download.OutcomeFailed,
			Reason:  download.ReasonUnknown,
			Message: download.ReasonUnknown.Message(),
			Err:     failure.New(failure.KindConfigurationMissing, "start download", "no downloader configured"),
		})
		return
	}

	task, err := m.downloader.Start(m.ctx, url, downloadSink{m})
	if err != nil {
		m.downloadFailed = true
		m.emit(DownloadFailed{
			Outcome: download.OutcomeFailed,
			Reason:  download.ReasonUnknown,
			Message: download.ReasonUnknown.Message(),
			Err:     err,
		})
		return
	}
	m.download = task
	m.downloadFailed = false
	m.emit(DownloadStarted{TaskID: task.ID, URL: url})
}

type downloadSink struct{ m *Machine }

func (s downloadSink) Progress(taskID string, soFar, total int64) {
	s.m.Post(func() {
		if s.m.download == nil || s.m.download.ID != taskID {
			return
		}
		s.m.emit(DownloadProgress{TaskID: taskID, SoFar: soFar, Total: total})
	})
}

func (s downloadSink) Finished(res download.Result) {
	s.m.Post(func() { s.m.onDownloadFinished(res) })
}

func (m *Machine) onDownloadFinished(res download.Result) {
	if m.download == nil || m.download.ID != res.TaskID {
		return
	}
	m.download = nil

	switch res.Outcome {
	case download.OutcomeCancelled:
		m.CancelAcquisition()
	case download.OutcomeSuccess:
		m.startInstall(res.Artifact)
	default:
		m.downloadFailed = true
		m.emit(DownloadFailed{
			TaskID:  res.TaskID,
			Outcome: res.Outcome,
			Reason:  res.Reason,
			Message: res.Message(),
			Err:     res.Err,
		})
	}
}

func (m *Machine) startInstall(artifact string) {
	if m.installer == nil {
		m.downloadFailed = true
		m.emit(InstallFailed{Err: failure.New(failure.KindConfigurationMissing, "install", "no installer configured")})
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.installCancel = cancel
	m.emit(Installing{Artifact: artifact})
	if m.installCancel == nil {
		// Cancelled from the Installing callback.
		return
	}

	go func() {
		err := m.installer.Install(ctx, artifact)
		m.Post(func() { m.onInstalled(ctx, err) })
	}()
}

func (m *Machine) onInstalled(ctx context.Context, err error) {
	if m.installCancel == nil || ctx.Err() != nil {
		return
	}
	m.installCancel()
	m.installCancel = nil

	if err != nil {
		m.downloadFailed = true
		m.log.Warn("Install failed", zap.Error(err))
		m.emit(InstallFailed{Err: err})
		return
	}
	m.CheckReadiness()
}

// Store path.

func (m *Machine) openStore() {
	if m.store == nil {
		m.emit(StoreUnavailable{Err: failure.New(failure.KindConfigurationMissing, "acquire",
			"no download url and no store configured")})
		return
	}

	// The URL handler may take a while to return; wait for it off the
	// control goroutine.
	ctx, cancel := context.WithCancel(m.ctx)
	m.storeCancel = cancel
	go func() {
		err := m.store.Open(ctx)
		m.Post(func() { m.onStoreOpened(ctx, err) })
	}()
}

func (m *Machine) onStoreOpened(ctx context.Context, err error) {
	if m.storeCancel == nil || ctx.Err() != nil {
		return
	}
	m.storeCancel()
	m.storeCancel = nil

	if err != nil {
		m.log.Warn("Opening store failed", zap.Error(err))
		m.emit(StoreUnavailable{Err: err})
		return
	}

	if m.watcher != nil {
		if err := m.watcher.Start(m.ctx, func() { m.Post(m.onStoreChange) }); err != nil {
			m.log.Warn("Install watcher failed", zap.Error(err))
		} else {
			m.watching = true
		}
	}
	m.emit(StoreOpened{Listing: m.listing})
}

// onStoreChange re-checks after the runtime directory changed. Nothing is
// reported until the inspection result differs.
func (m *Machine) onStoreChange() {
	if m.status == StatusReady || m.status == StatusCancelled {
		return
	}
	if !m.watching || m.busy() {
		return
	}
	insp := m.prober.Inspect(m.ctx)
	if statusFor(insp.Finding) == m.status {
		return
	}
	m.stopWatching()
	m.handleInspection(insp)
}

func (m *Machine) stopWatching() {
	if !m.watching {
		return
	}
	m.watching = false
	if err := m.watcher.Stop(); err != nil {
		m.log.Debug("Stopping install watcher", zap.Error(err))
	}
}

// Decompress path.

func (m *Machine) startDecompress(archive string) {
	if m.decompressor == nil {
		err := failure.New(failure.KindConfigurationMissing, "decompress", "no decompressor configured")
		m.setStatus(StatusRuntimeError)
		m.settledErr = err
		m.emit(RuntimeError{Err: err})
		return
	}
	m.decompressGen++
	m.decompress = m.decompressor.Start(m.ctx, archive, m.runtimeDir, decompressSink{m, m.decompressGen})
}

type decompressSink struct {
	m   *Machine
	gen int
}

func (s decompressSink) current() bool {
	return s.m.decompress != nil && s.m.decompressGen == s.gen
}

func (s decompressSink) Progress(entries int, name string) {
	s.m.Post(func() {
		if s.current() {
			s.m.emit(DecompressProgress{Entries: entries, Name: name})
		}
	})
}

func (s decompressSink) Finished(res extract.Result) {
	s.m.Post(func() {
		if s.current() {
			s.m.onDecompressed(res)
		}
	})
}

// onDecompressed proceeds to Matched after any completion that was not a
// cancel. Only a successful run records the local version marker, so a failed
// one is decompressed again on the next check.
func (m *Machine) onDecompressed(res extract.Result) {
	m.decompress = nil
	m.emit(DecompressFinished{Outcome: res.Outcome, Entries: res.Entries, Err: res.Err})

	switch {
	case m.status != StatusCompressed:
		return
	case res.Outcome == extract.OutcomeCancelled:
		m.CancelAcquisition()
		return
	case res.Outcome == extract.OutcomeSuccess && m.markerDir != "":
		err := marker.Save(m.markerDir, &marker.Marker{
			Version: m.requiredVersion,
			Source:  "decompress",
			Path:    res.Dest,
		})
		if err != nil {
			m.log.Warn("Saving version marker failed", zap.Error(err))
		}
	case res.Err != nil:
		m.log.Warn("Decompression failed", zap.String("archive", res.Archive), zap.Error(res.Err))
	}

	m.setStatus(StatusMatched)
	m.becomeReady()
}
