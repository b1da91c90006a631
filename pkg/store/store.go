// Package store abstracts the writable destination filesystem. The
// idempotent copy capability lives here so the materializer can be tested
// against a fake store without touching real I/O.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"gitlab.com/tozd/go/errors"
)

// 🎚️ Strictness controls when an existing destination file counts as
// already copied.
type Strictness int

const (
	// StrictnessSize treats a destination file with matching size as already
	// copied. Cheap, suitable for resuming large transfers over the mount.
	StrictnessSize Strictness = iota
	// StrictnessHash additionally compares SHA-256 content hashes.
	StrictnessHash
)

// 📋 CopyResult reports what an idempotent copy actually did.
type CopyResult int

const (
	ResultCopied CopyResult = iota
	ResultSkipped
)

func (r CopyResult) String() string {
	if r == ResultSkipped {
		return "skipped-exists"
	}
	return "copied"
}

// 💾 Store is the destination abstraction used by the materializer and the
// sample renamer.
type Store interface {
	// EnsureDir creates a directory and all parents, idempotently.
	EnsureDir(ctx context.Context, path string) error
	// CopyFile copies src to dst idempotently: an existing destination that
	// already matches per the strictness policy is skipped, anything else is
	// overwritten. Returns the size of the source file in bytes.
	CopyFile(ctx context.Context, src, dst string) (CopyResult, int64, error)
	// Exists reports whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// Rename atomically moves a file within the destination tree.
	Rename(ctx context.Context, oldPath, newPath string) error
}

// 🔧 Options configures the OS-backed store.
type Options struct {
	Strictness Strictness
	// MaxRetries bounds re-attempts per file on I/O errors before the copy
	// is reported failed. Zero means no retries.
	MaxRetries uint64
	// RetryDelay is the constant backoff between attempts.
	RetryDelay time.Duration
}

// 🏭 New creates a store backed by the local filesystem.
func New(opts Options) Store {
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	return &osStore{opts: opts}
}

type osStore struct {
	opts Options
}

// copiedFileMode matches what downstream pipeline tools expect on shared
// storage (group-writable, world-readable).
const copiedFileMode = os.FileMode(0o775)

func (s *osStore) EnsureDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Errorf("creating directory %q: %w", path, err)
	}
	return nil
}

func (s *osStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Errorf("checking existence of %q: %w", path, err)
}

func (s *osStore) CopyFile(ctx context.Context, src, dst string) (CopyResult, int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return ResultCopied, 0, errors.Errorf("reading source %q: %w", src, err)
	}

	same, err := s.alreadyCopied(src, dst, srcInfo.Size())
	if err != nil {
		return ResultCopied, 0, err
	}
	if same {
		return ResultSkipped, srcInfo.Size(), nil
	}

	// Transient mount hiccups are worth a couple of re-reads before the
	// file is reported failed.
	backoff := retry.WithMaxRetries(s.opts.MaxRetries, retry.NewConstant(s.opts.RetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := copyFileAtomic(src, dst); err != nil {
			zerolog.Ctx(ctx).Debug().Str("src", src).Err(err).Msg("copy attempt failed, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return ResultCopied, 0, errors.Errorf("copying %q: %w", src, err)
	}

	return ResultCopied, srcInfo.Size(), nil
}

func (s *osStore) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return errors.Errorf("renaming %q to %q: %w", oldPath, newPath, err)
	}
	return nil
}

// alreadyCopied applies the strictness policy against an existing
// destination file.
func (s *osStore) alreadyCopied(src, dst string, srcSize int64) (bool, error) {
	dstInfo, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Errorf("checking destination %q: %w", dst, err)
	}
	if dstInfo.IsDir() || dstInfo.Size() != srcSize {
		return false, nil
	}
	if s.opts.Strictness == StrictnessSize {
		return true, nil
	}

	srcSum, err := fileChecksum(src)
	if err != nil {
		return false, errors.Errorf("hashing source %q: %w", src, err)
	}
	dstSum, err := fileChecksum(dst)
	if err != nil {
		return false, errors.Errorf("hashing destination %q: %w", dst, err)
	}
	return bytes.Equal(srcSum, dstSum), nil
}

// copyFileAtomic writes through a temp file in the destination directory and
// renames it into place, so interrupted copies never leave a truncated file
// that a later resume would skip over.
func copyFileAtomic(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening source file: %w", err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return errors.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Errorf("copying file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, copiedFileMode); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
