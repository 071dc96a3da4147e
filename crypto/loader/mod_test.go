package loader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestFileLoader_LoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.key")

	ld := NewFileLoader(path)

	data, err := ld.LoadOrCreate(fakeGenerator{data: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)

	// The generator must not run again once the file exists.
	data, err = ld.LoadOrCreate(fakeGenerator{err: xerrors.New("oops")})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestFileLoader_LoadOrCreate_GeneratorFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.key")

	_, err := NewFileLoader(path).LoadOrCreate(fakeGenerator{err: xerrors.New("oops")})
	require.EqualError(t, err, "generator failed: oops")
}

func TestFileLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.key")

	ld := NewFileLoader(path)

	_, err := ld.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "while opening file")

	_, err = ld.LoadOrCreate(fakeGenerator{data: []byte{4, 5}})
	require.NoError(t, err)

	data, err := ld.Load()
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, data)
}

type fakeGenerator struct {
	data []byte
	err  error
}

func (g fakeGenerator) Generate() ([]byte, error) {
	return g.data, g.err
}
