package matching

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/MrCodeEU/attendface/pkg/recognition"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

// vec returns a descriptor that is zero except for value at axis.
func vec(value float64, axis int) []float64 {
	v := make([]float64, storage.VectorDimension)
	v[axis] = value
	return v
}

// MockExtractor maps image payloads to descriptors or errors.
type MockExtractor struct {
	mu      sync.Mutex
	faces   map[string][]float64
	errs    map[string]error
	calls   int
	Picture *recognition.Image
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		faces: make(map[string][]float64),
		errs:  make(map[string]error),
	}
}

func (m *MockExtractor) Face(img string, descriptor []float64) *MockExtractor {
	m.faces[img] = descriptor
	return m
}

func (m *MockExtractor) Fail(img string, err error) *MockExtractor {
	m.errs[img] = err
	return m
}

func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte) (*recognition.Capture, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	key := string(data)
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	d, ok := m.faces[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown test image %q", recognition.ErrInvalidImage, key)
	}
	return &recognition.Capture{
		Face: recognition.Face{
			BoundingBox: image.Rect(20, 20, 60, 60),
			Descriptor:  append([]float64(nil), d...),
		},
		Image: m.Picture,
	}, nil
}

// MockStore wraps a MemoryStore and allows injecting failures.
type MockStore struct {
	*storage.MemoryStore
	GetFunc    func(ctx context.Context, key int64) (*storage.Embedding, error)
	GetAllFunc func(ctx context.Context) ([]storage.Embedding, error)
	PutFunc    func(ctx context.Context, e storage.Embedding) error
	DeleteFunc func(ctx context.Context, key int64) (bool, error)
}

func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: storage.NewMemoryStore()}
}

func (m *MockStore) Get(ctx context.Context, key int64) (*storage.Embedding, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return m.MemoryStore.Get(ctx, key)
}

func (m *MockStore) GetAll(ctx context.Context) ([]storage.Embedding, error) {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx)
	}
	return m.MemoryStore.GetAll(ctx)
}

func (m *MockStore) Put(ctx context.Context, e storage.Embedding) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, e)
	}
	return m.MemoryStore.Put(ctx, e)
}

func (m *MockStore) Delete(ctx context.Context, key int64) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return m.MemoryStore.Delete(ctx, key)
}

// MockCrops records crop writes.
type MockCrops struct {
	SaveErr error
	saved   map[string][]byte
	removed []string
	counter int
}

func NewMockCrops() *MockCrops {
	return &MockCrops{saved: make(map[string][]byte)}
}

func (m *MockCrops) Save(key int64, data []byte) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	m.counter++
	path := fmt.Sprintf("/crops/%d_%d.jpg", key, m.counter)
	m.saved[path] = data
	return path, nil
}

func (m *MockCrops) Remove(path string) error {
	if _, ok := m.saved[path]; !ok {
		return errors.New("no such crop")
	}
	delete(m.saved, path)
	m.removed = append(m.removed, path)
	return nil
}
