package testutil

import (
	"context"
	"sync"

	"patchdb/internal/patchindex"
)

// FakeIndex is an in-memory patchindex.Client that records calls.
type FakeIndex struct {
	mu sync.Mutex

	Indexed  []uint
	Deleted  []uint
	Searches int

	Matches   []patchindex.Match
	IndexErr  error
	DeleteErr error
	SearchErr error
}

var _ patchindex.Client = (*FakeIndex)(nil)

func (f *FakeIndex) Index(_ context.Context, patchNumber uint, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IndexErr != nil {
		return f.IndexErr
	}
	f.Indexed = append(f.Indexed, patchNumber)
	return nil
}

func (f *FakeIndex) Delete(_ context.Context, patchNumber uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, patchNumber)
	return nil
}

func (f *FakeIndex) Search(_ context.Context, _ []byte, _ string) ([]patchindex.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches++
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return append([]patchindex.Match(nil), f.Matches...), nil
}

// IndexCalls returns how many patches were indexed.
func (f *FakeIndex) IndexCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Indexed)
}
