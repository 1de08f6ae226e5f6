package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"onbid_bot/internal/model"
)

const settingsFileName = "settings.json"

// stateFile is the on-disk layout of one keyword's state.
type stateFile struct {
	LastChecked time.Time    `json:"lastChecked"`
	Keyword     string       `json:"keyword"`
	Items       []model.Item `json:"items"`
}

// File implements Storage with one JSON document per keyword in a directory.
// Documents are replaced by rename so readers never see a partial write.
type File struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFile creates a file store rooted at dir, creating the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &File{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close is a no-op; the file store holds no open handles.
func (f *File) Close() error {
	return nil
}

// StatePath returns the file that holds the state for keyword.
func (f *File) StatePath(keyword string) string {
	return filepath.Join(f.dir, "state-"+url.PathEscape(keyword)+".json")
}

// Load returns the state stored for keyword, or nil if there is none.
func (f *File) Load(_ context.Context, keyword string) (*model.SearchState, error) {
	data, err := os.ReadFile(f.StatePath(keyword))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var doc stateFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Keyword: keyword, Err: fmt.Errorf("decode state: %w", err)}
	}
	if doc.Keyword != keyword {
		return nil, &CorruptError{Keyword: keyword, Err: fmt.Errorf("file holds keyword %q", doc.Keyword)}
	}

	return &model.SearchState{
		Keyword:     doc.Keyword,
		Items:       union(nil, doc.Items),
		LastChecked: doc.LastChecked,
	}, nil
}

// Merge unions items into the stored state for keyword and rewrites the file.
func (f *File) Merge(ctx context.Context, keyword string, items []model.Item) (*model.SearchState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, err := f.Load(ctx, keyword)
	if err != nil {
		return nil, err
	}

	var base []model.Item
	if prev != nil {
		base = prev.Items
	}
	state := &model.SearchState{
		Keyword:     keyword,
		Items:       union(base, items),
		LastChecked: f.now(),
	}

	data, err := json.MarshalIndent(stateFile{
		LastChecked: state.LastChecked,
		Keyword:     state.Keyword,
		Items:       state.Items,
	}, "", "  ")
	if err != nil {
		return nil, &WriteError{Keyword: keyword, Err: fmt.Errorf("encode state: %w", err)}
	}
	if err := writeFileAtomic(f.StatePath(keyword), data); err != nil {
		return nil, &WriteError{Keyword: keyword, Err: err}
	}
	return state, nil
}

// GetSettings returns the saved settings or the defaults.
func (f *File) GetSettings(_ context.Context) (*model.Settings, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, settingsFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	st := model.DefaultSettings()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

// SaveSettings replaces the stored settings.
func (f *File) SaveSettings(_ context.Context, st *model.Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(f.dir, settingsFileName), data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
