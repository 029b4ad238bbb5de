package spill

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTemp_RemovesDirOnClose(t *testing.T) {
	s, err := OpenTemp(t.TempDir())
	require.NoError(t, err)
	dir := s.Dir()
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Close())
}

func TestStore_ScanAndCursorOrder(t *testing.T) {
	s, err := Open(TempConfig(t.TempDir()))
	require.NoError(t, err)
	defer s.Close()

	w := s.NewWriter()
	for _, k := range []string{"b/2", "a/1", "b/1", "c/9"} {
		require.NoError(t, w.Set([]byte(k), []byte("v"+k)))
	}
	require.NoError(t, w.Flush())

	var keys []string
	require.NoError(t, s.Scan([]byte("b/"), true, func(k, v []byte) error {
		keys = append(keys, string(k))
		assert.Equal(t, "v"+string(k), string(v))
		return nil
	}))
	assert.Equal(t, []string{"b/1", "b/2"}, keys)

	c := s.NewCursor(nil, false)
	keys = keys[:0]
	for c.Next() {
		keys = append(keys, string(c.Key()))
	}
	require.NoError(t, c.Err())
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"a/1", "b/1", "b/2", "c/9"}, keys)

	ok, err := s.HasPrefix([]byte("c/"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DropPrefix([]byte("b/")))
	ok, err = s.HasPrefix([]byte("b/"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := s.Get([]byte("a/1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "va/1", string(v))
}

func TestStringKeys(t *testing.T) {
	key := AppendString(nil, "k\x00y")
	key = append(key, "rest"...)
	s, rest, err := ReadString(key)
	require.NoError(t, err)
	assert.Equal(t, "k\x00y", s)
	assert.Equal(t, "rest", string(rest))

	_, _, err = ReadString([]byte{0x05, 'a'})
	assert.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(&Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	w := s.NewWriter()
	require.NoError(t, w.Set([]byte("k"), nil))
	require.NoError(t, w.Flush())
	ok, err := s.HasPrefix([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{InMemory: true}).Validate())
	assert.Error(t, (&Config{Dir: "x", ValueLogFileSize: 10}).Validate())
}
