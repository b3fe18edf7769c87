package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// fileSnapshot is the on-disk layout: the counter record plus one record per id.
type fileSnapshot struct {
	ProposalCount uint32                         `json:"proposal_count"`
	Proposals     map[uint32]*contracts.Proposal `json:"proposals"`
}

// FileStore implements Store on a single local JSON file.
// Every mutation rewrites the file via a temp file and rename.
type FileStore struct {
	path string
	mu   sync.RWMutex
	data fileSnapshot
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: fileSnapshot{Proposals: make(map[uint32]*contracts.Proposal)},
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // Start empty
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("corrupt store file %s: %w", f.path, err)
	}
	if snap.Proposals == nil {
		snap.Proposals = make(map[uint32]*contracts.Proposal)
	}
	f.data = snap
	return nil
}

// save must be called with f.mu held.
func (f *FileStore) save() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("ensure store dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Count(ctx context.Context) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.data.ProposalCount, nil
}

func (f *FileStore) Create(ctx context.Context, p *contracts.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.ID != f.data.ProposalCount+1 {
		return ErrConflict
	}
	if _, exists := f.data.Proposals[p.ID]; exists {
		return ErrConflict
	}

	prevCount := f.data.ProposalCount
	f.data.Proposals[p.ID] = p.Clone()
	f.data.ProposalCount = p.ID
	if err := f.save(); err != nil {
		delete(f.data.Proposals, p.ID)
		f.data.ProposalCount = prevCount
		return err
	}
	return nil
}

func (f *FileStore) Get(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.data.Proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (f *FileStore) Put(ctx context.Context, p *contracts.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, ok := f.data.Proposals[p.ID]
	if !ok {
		return ErrNotFound
	}
	f.data.Proposals[p.ID] = p.Clone()
	if err := f.save(); err != nil {
		f.data.Proposals[p.ID] = prev
		return err
	}
	return nil
}

func (f *FileStore) List(ctx context.Context) ([]*contracts.Proposal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*contracts.Proposal, 0, len(f.data.Proposals))
	for _, p := range f.data.Proposals {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FileStore) Close() error { return nil }
