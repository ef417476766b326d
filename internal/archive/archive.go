// Package archive stores rendered dispatch slips so an issued prescription's
// message can be retrieved after it was sent.
//
// Three drivers share the Store contract:
//   - memory: process-local, for tests and ephemeral runs
//   - fs: files under a root directory with a JSON metadata sidecar
//   - s3: a single S3 (or S3-compatible) bucket
//
// Writes are create-only. Re-archiving the same key fails with ErrExists so
// a slip, once written, always matches what the grower received.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver names an archive backend.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

var (
	// ErrNotFound indicates no object exists under the key.
	ErrNotFound = errors.New("archive: object not found")
	// ErrExists indicates a create-only write hit an existing key.
	ErrExists = errors.New("archive: object already exists")
	// ErrInvalidKey indicates the key is empty or escapes the archive root.
	ErrInvalidKey = errors.New("archive: invalid key")
)

// PutOptions carries object attributes stored alongside the body.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the archive contract implemented by every driver.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// DispatchKey is the archive key for a prescription's dispatch slip.
func DispatchKey(orchardID, prescriptionID string) string {
	return path.Join("dispatch", safeSegment(orchardID), safeSegment(prescriptionID)+".txt")
}

// ReadAll fetches key and returns its body.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// cleanKey rejects empty, absolute and traversing keys.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: absolute key %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: traversal in %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// safeSegment replaces path separators so ids cannot create nested keys.
func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
