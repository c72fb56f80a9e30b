package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for S3-compatible storage.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Manager downloads s3://bucket/key objects from S3-compatible storage.
type S3Manager struct {
	client *minio.Client
	table
}

// NewS3Manager creates an S3Manager. Credentials may be empty for public
// buckets.
func NewS3Manager(cfg S3Config) (*S3Manager, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	opts := &minio.Options{Secure: cfg.UseSSL, Region: region}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access != "" || secret != "" {
		opts.Creds = credentials.NewStaticV4(access, secret, "")
	} else {
		opts.Creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Manager{client: client}, nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	bucket, key = u.Host, strings.TrimLeft(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and a key: %s", raw)
	}
	return bucket, key, nil
}

// Enqueue starts downloading the object named by req.URL into req.Dest.
func (m *S3Manager) Enqueue(ctx context.Context, req Request) (string, error) {
	bucket, key, err := ParseS3URL(req.URL)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &transfer{
		snap:   Snapshot{ID: uuid.NewString(), Status: StatusPending, Total: -1},
		dest:   req.Dest,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.add(t)

	go func() {
		defer close(t.done)
		m.run(ctx, t, bucket, key)
	}()
	return t.snap.ID, nil
}

// Query returns the latest snapshot of a transfer.
func (m *S3Manager) Query(id string) (Snapshot, bool) {
	return m.query(id)
}

// Remove stops and forgets a transfer.
func (m *S3Manager) Remove(id string) error {
	return m.remove(id)
}

func (m *S3Manager) run(ctx context.Context, t *transfer, bucket, key string) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if ctx.Err() == nil {
			t.fail(s3Reason(err), fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err))
		}
		return
	}
	t.update(func(s *Snapshot) {
		s.Status, s.Total = StatusRunning, info.Size
	})

	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if ctx.Err() == nil {
			t.fail(s3Reason(err), fmt.Errorf("get s3://%s/%s: %w", bucket, key, err))
		}
		return
	}
	defer obj.Close()

	if err := os.MkdirAll(filepath.Dir(t.dest), 0755); err != nil {
		t.fail(classifyWriteError(err), fmt.Errorf("creating download directory: %w", err))
		return
	}
	f, err := os.Create(t.dest)
	if err != nil {
		t.fail(classifyWriteError(err), fmt.Errorf("creating download file: %w", err))
		return
	}
	defer f.Close()

	_, err = io.Copy(&fileWriter{f: f}, &progressReader{r: obj, t: t})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var we *writeError
		if errors.As(err, &we) {
			t.fail(classifyWriteError(we.err), fmt.Errorf("writing download: %w", we.err))
			return
		}
		t.fail(s3Reason(err), fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err))
		return
	}
	if err := f.Sync(); err != nil {
		t.fail(classifyWriteError(err), fmt.Errorf("flushing download: %w", err))
		return
	}
	t.update(func(s *Snapshot) {
		s.Status, s.Path = StatusSuccessful, t.dest
	})
}

func s3Reason(err error) Reason {
	switch minio.ToErrorResponse(err).Code {
	case "":
		return ReasonNetwork
	default:
		return ReasonHTTP
	}
}

// progressReader counts bytes read into the transfer snapshot.
type progressReader struct {
	r io.Reader
	t *transfer
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.t.update(func(s *Snapshot) { s.BytesSoFar += int64(n) })
	}
	return n, err
}

// fileWriter tags write failures so they are not mistaken for network errors.
type fileWriter struct{ f *os.File }

func (w *fileWriter) Write(b []byte) (int, error) {
	n, err := w.f.Write(b)
	if err != nil {
		return n, &writeError{err}
	}
	return n, nil
}

// writeError marks a failure on the local side of a copy.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }
