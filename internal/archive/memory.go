package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	body []byte
	info Info
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemory returns an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memoryObject),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Driver reports DriverMemory.
func (m *Memory) Driver() Driver { return DriverMemory }

// Put stores r under key if the key is free.
func (m *Memory) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("read body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[k]; exists {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, k)
	}
	info := Info{
		Key:          k,
		Size:         int64(len(body)),
		ContentType:  opts.ContentType,
		Metadata:     copyMetadata(opts.Metadata),
		LastModified: m.now(),
	}
	m.objects[k] = memoryObject{body: body, info: info}
	return info, nil
}

// Get returns the object under key.
func (m *Memory) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, nil, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return Info{}, nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[k]
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return obj.info, io.NopCloser(bytes.NewReader(obj.body)), nil
}

// List returns objects whose key starts with prefix, sorted by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
