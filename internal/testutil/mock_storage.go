// mock_storage.go - Mock storage implementations for testing
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/storage"
)

// MockStorage implements storage.Store in memory
type MockStorage struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	mu       sync.RWMutex
}

// NewMockStorage creates a new empty mock spool
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := generateTestID()
	file := &models.FileInfo{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  time.Now(),
		Status:      storage.StatusSpooled,
	}
	m.files[id] = file
	m.fileData[id] = data
	return file, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return file, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return errors.New("file not found")
	}
	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	return "/mock/path/" + id, nil
}

// Spooled returns the stored bytes as an in-memory file
func (m *MockStorage) Spooled(info *models.FileInfo) ingest.File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ingest.MemFile{FileName: info.Name, MIME: info.ContentType, Data: m.fileData[info.ID]}
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

var (
	testIDCounter int
	testIDMutex   sync.Mutex
)

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}

// MockProjectStore implements storage.ProjectStore in memory. Set SaveErr
// or ReturnNil to simulate a failing backend, and Block to hold Save until
// the channel is closed.
type MockProjectStore struct {
	mu        sync.Mutex
	records   map[string]models.ProjectRecord
	requests  []models.SaveRequest
	SaveErr   error
	ReturnNil bool
	Block     chan struct{}
}

// NewMockProjectStore creates an empty project store
func NewMockProjectStore() *MockProjectStore {
	return &MockProjectStore{records: make(map[string]models.ProjectRecord)}
}

func (m *MockProjectStore) Save(ctx context.Context, req models.SaveRequest) (*models.ProjectRecord, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	if m.ReturnNil {
		return nil, nil
	}
	m.records[req.Item.ID] = req.Item
	rec := req.Item
	return &rec, nil
}

func (m *MockProjectStore) Get(ctx context.Context, id string) (*models.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrProjectNotFound
	}
	return &rec, nil
}

func (m *MockProjectStore) List(ctx context.Context, limit int) ([]models.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ProjectRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockProjectStore) Close() error { return nil }

// SetFailure switches failure modes under the lock
func (m *MockProjectStore) SetFailure(err error, returnNil bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveErr = err
	m.ReturnNil = returnNil
}

// Requests returns every SaveRequest received
func (m *MockProjectStore) Requests() []models.SaveRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SaveRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ storage.ProjectStore = (*MockProjectStore)(nil)
