package store

import "sync"

var storeMu sync.Mutex

// lock serializes writers within this process only
func (s *Store) lock() (func(), error) {
	storeMu.Lock()
	return storeMu.Unlock, nil
}
