package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests. Presigned URLs are fake but
// stable, so assertions can match on them.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PresignErr, when set, makes every Presign call fail with it.
	PresignErr error

	// PutHook, when set, runs before each Put and can fail it.
	PutHook func(key string) error

	// presigns counts Presign calls, so auth tests can assert the
	// resolver was never reached.
	presigns int
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte) error {
	if m.PutHook != nil {
		if err := m.PutHook(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	return nil
}

func (m *Memory) Head(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Presign(ctx context.Context, method string, key string, ttl time.Duration) (string, error) {
	if !supportedMethod(method) {
		return "", ErrUnsupportedMethod
	}
	m.mu.Lock()
	m.presigns++
	m.mu.Unlock()
	if m.PresignErr != nil {
		return "", m.PresignErr
	}
	return fmt.Sprintf("https://blob.test/%s?method=%s&ttl=%d", key, method, int(ttl.Seconds())), nil
}

// PresignCalls returns how many times Presign has been invoked.
func (m *Memory) PresignCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.presigns
}

// Delete removes an object, for test setup only.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}
