package file_store

import (
	"io"
	"io/ioutil"
	"sync"
)

// FakeFileStore keeps everything in memory.
type FakeFileStore struct {
	mu    sync.Mutex
	Files map[string][]byte
}

func NewFakeFileStore() *FakeFileStore {
	return &FakeFileStore{Files: map[string][]byte{}}
}

func (s *FakeFileStore) Store(key string, body io.Reader) (string, error) {
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files[key] = data
	return key, nil
}

func (s *FakeFileStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Files[key]
	return data, ok
}

func (*FakeFileStore) GetUrlFromKey(key string) string {
	return key
}

func (*FakeFileStore) CleanUp() {}
