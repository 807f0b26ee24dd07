package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goprep/domain/core"
	"goprep/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreKeepsOriginalName(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "session")
	s := NewLocalFileStorage(dir, 0)

	h, err := s.Store(ctx, strings.NewReader("x,y\n1,2\n"), "C:\\Users\\me\\sales.csv")
	require.NoError(t, err)
	assert.Equal(t, core.DatasetID("sales.csv"), h.ID)
	assert.Equal(t, filepath.Join(dir, "sales.csv"), h.Path)
	assert.Equal(t, int64(8), h.Size)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2\n", string(data))

	// same name replaces
	_, err = s.Store(ctx, strings.NewReader("x\n3\n"), "sales.csv")
	require.NoError(t, err)
	handles, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, int64(4), handles[0].Size)
}

func TestStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := NewLocalFileStorage(t.TempDir(), 4)

	_, err := s.Store(ctx, strings.NewReader("{}"), "data.json")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = s.Store(ctx, strings.NewReader("x"), "../.hidden.csv")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = s.Store(ctx, strings.NewReader("x,y\n1,2\n"), "big.csv")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	handles, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestListAndRemove(t *testing.T) {
	ctx := context.Background()
	s := NewLocalFileStorage(filepath.Join(t.TempDir(), "missing-yet"), 0)

	handles, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)

	for _, name := range []string{"b.csv", "a.csv"} {
		_, err := s.Store(ctx, strings.NewReader("x\n1\n"), name)
		require.NoError(t, err)
	}
	handles, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.DatasetID{"a.csv", "b.csv"}, []core.DatasetID{handles[0].ID, handles[1].ID})

	require.NoError(t, s.Remove(ctx, "a.csv"))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(s.Remove(ctx, "a.csv")))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(s.Remove(ctx, "../b.csv")))
}
