package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("a.png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	_, err = store.SaveStream("a.png", strings.NewReader("again"))
	assert.Error(t, err)

	f, err := store.Open("a.png")
	require.NoError(t, err)
	body, _ := io.ReadAll(f)
	_ = f.Close()
	assert.Equal(t, "data", string(body))

	require.NoError(t, store.Delete("a.png"))
	require.NoError(t, store.Delete("a.png"))
}

func TestLocalStorageStaysInRoot(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("../../etc/evil", strings.NewReader("x"))
	require.NoError(t, err, "traversal is clamped into the root")
	_, err = store.Open("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
