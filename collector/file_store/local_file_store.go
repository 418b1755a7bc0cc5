package file_store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalFileStore writes under a folder on local disk, mainly for the CLI and
// for development.
type LocalFileStore struct {
	folderName string
	// Remove the folder on CleanUp. Only set for temporary stores.
	ephemeral bool
}

func NewLocalFileStore(folderName string) (*LocalFileStore, error) {
	if err := os.MkdirAll(folderName, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalFileStore{folderName: folderName}, nil
}

// NewTempFileStore creates a store in a fresh temporary folder that is
// deleted on CleanUp.
func NewTempFileStore(prefix string) (*LocalFileStore, error) {
	folderName, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	return &LocalFileStore{folderName: folderName, ephemeral: true}, nil
}

func (s *LocalFileStore) Store(key string, body io.Reader) (string, error) {
	if key == "" {
		return "", errors.New("empty file key")
	}
	localPath := filepath.Join(s.folderName, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
		return "", err
	}

	//open a file for writing
	file, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalFileStore) GetUrlFromKey(key string) string {
	return filepath.Join(s.folderName, filepath.FromSlash(key))
}

func (s *LocalFileStore) CleanUp() {
	if s.ephemeral {
		os.RemoveAll(s.folderName)
	}
}
