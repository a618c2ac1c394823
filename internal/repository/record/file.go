package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/pyfreeze/internal/domain/build"
)

// Filename is the record file created inside the build directory.
const Filename = "pyfreeze-last-build.yaml"

// Repository defines persistence operations for build records.
type Repository interface {
	Load(ctx context.Context) (*build.Record, error)
	Save(ctx context.Context, record *build.Record) error
}

// FileRepository persists the last build record to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the record file.
	path string
	// mu protects concurrent access to the record file.
	mu sync.Mutex
}

// ErrNotFound is returned when no build has been recorded yet.
var ErrNotFound = errors.New("build record not found")

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// NewInDir creates a repository for the record file inside dir.
func NewInDir(dir string) *FileRepository {
	return NewFileRepository(filepath.Join(dir, Filename))
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*build.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read build record: %w", err)
	}

	var rec build.Record
	if err = yaml.Unmarshal(contents, &rec); err != nil {
		return nil, fmt.Errorf("decode build record: %w", err)
	}

	return &rec, nil
}

// Save writes the record to disk, creating the parent directory if needed.
func (r *FileRepository) Save(_ context.Context, rec *build.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}

	return nil
}
