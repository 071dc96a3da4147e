// Package loader defines an abstraction to load a private key from a
// persistent storage, generating and storing a fresh one when none exists.
package loader

import (
	"io"
	"os"

	"golang.org/x/xerrors"
)

// Generator is the interface to implement to generate a new key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader is an abstraction to load a key from a storage.
type Loader interface {
	// LoadOrCreate tries to load the key and returns it if found, otherwise
	// it generates a new one using the generator and stores it.
	LoadOrCreate(Generator) ([]byte, error)

	// Load returns the key, or an error when it does not exist.
	Load() ([]byte, error)
}

// fileLoader stores the key in a single file on disk.
//
// - implements loader.Loader
type fileLoader struct {
	path string
}

// NewFileLoader creates a new loader using the file given in parameter.
func NewFileLoader(path string) Loader {
	return fileLoader{path: path}
}

// LoadOrCreate implements loader.Loader. The file is created with read-only
// permission for the current user.
func (l fileLoader) LoadOrCreate(g Generator) ([]byte, error) {
	_, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		data, err := g.Generate()
		if err != nil {
			return nil, xerrors.Errorf("generator failed: %v", err)
		}

		file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0400)
		if err != nil {
			return nil, xerrors.Errorf("while creating file: %v", err)
		}

		defer file.Close()

		_, err = file.Write(data)
		if err != nil {
			return nil, xerrors.Errorf("while writing: %v", err)
		}

		return data, nil
	}

	data, err := l.Load()
	if err != nil {
		return nil, xerrors.Errorf("failed to load file: %v", err)
	}

	return data, nil
}

// Load implements loader.Loader. It reads the key from the file.
func (l fileLoader) Load() ([]byte, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, xerrors.Errorf("while opening file: %v", err)
	}

	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Errorf("while reading file: %v", err)
	}

	return data, nil
}
