package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// metaSuffix names the JSON sidecar written next to each object.
const metaSuffix = ".meta"

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Filesystem stores objects as files under a root directory.
type Filesystem struct {
	root string
}

// NewFilesystem returns an archive rooted at root, creating it if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./archive"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Driver reports DriverFilesystem.
func (s *Filesystem) Driver() Driver { return DriverFilesystem }

func (s *Filesystem) pathsFor(key string) (dataPath, metaPath, clean string, err error) {
	clean, err = cleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(clean))
	return dataPath, dataPath + metaSuffix, clean, nil
}

// Put writes r under key. The data file is created with O_EXCL so two
// writers racing on one key cannot both succeed.
func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	dataPath, metaPath, clean, err := s.pathsFor(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, fmt.Errorf("create archive dir: %w", err)
	}

	f, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrExists, clean)
		}
		return Info{}, fmt.Errorf("create object: %w", err)
	}
	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dataPath)
		return Info{}, fmt.Errorf("write object: %w", errors.Join(copyErr, closeErr))
	}

	meta := metaFile{
		ContentType: opts.ContentType,
		Metadata:    copyMetadata(opts.Metadata),
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return Info{}, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return Info{}, fmt.Errorf("write metadata: %w", err)
	}
	return meta.info(clean), nil
}

// Get opens the object under key.
func (s *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, nil, err
	}
	dataPath, metaPath, clean, err := s.pathsFor(key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return Info{}, nil, fmt.Errorf("open object: %w", err)
	}
	meta, err := readMeta(metaPath)
	if err != nil {
		f.Close()
		return Info{}, nil, err
	}
	return meta.info(clean), f, nil
}

// List walks the root and returns objects whose key starts with prefix.
func (s *Filesystem) List(ctx context.Context, prefix string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readMeta(p + metaSuffix)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func readMeta(metaPath string) (metaFile, error) {
	var meta metaFile
	b, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, nil
		}
		return meta, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func (m metaFile) info(key string) Info {
	return Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		Metadata:     m.Metadata,
		LastModified: m.CreatedAt,
	}
}
