package persistence

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/edgehub-go/devicesession/pkg/optionbag"
)

// OptionBagStore persists a single captured option bag to a CBOR file on
// disk. It is safe for concurrent use.
type OptionBagStore struct {
	mu   sync.Mutex
	path string
}

// NewOptionBagStore creates a store backed by the file at path. The parent
// directory is created on first Save if it doesn't exist.
func NewOptionBagStore(path string) *OptionBagStore {
	return &OptionBagStore{path: path}
}

// Save writes bag to disk, overwriting any previous snapshot.
func (s *OptionBagStore) Save(bag *optionbag.Bag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := optionbag.Encode(bag)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the saved option bag from disk. It returns nil, nil if no
// snapshot has been saved yet.
func (s *OptionBagStore) Load() (*optionbag.Bag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return optionbag.Decode(data)
}

// Clear removes the saved snapshot, if any.
func (s *OptionBagStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
