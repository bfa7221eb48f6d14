package remote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semindex/internal/config"
)

func TestObjectKeyRoundTrip(t *testing.T) {
	require.Equal(t, "embeddings/42.json", objectKey("", 42))
	require.Equal(t, "dev/embeddings/42.json", objectKey("dev", 42))
	require.Equal(t, "dev/embeddings/", listPrefix("dev"))
	require.Equal(t, "embeddings/", listPrefix(""))

	id, ok := parseObjectKey(objectKey("dev", 42))
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}

func TestParseObjectKeyRejectsForeignObjects(t *testing.T) {
	for _, key := range []string{"embeddings/readme.txt", "embeddings/abc.json", "embeddings/-3.json", "embeddings/0.json"} {
		_, ok := parseObjectKey(key)
		require.False(t, ok, key)
	}
}

func TestNewRemote(t *testing.T) {
	r, err := New(config.RemoteConfig{})
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = New(config.RemoteConfig{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, r)

	_, err = New(config.RemoteConfig{Type: "ftp"})
	require.Error(t, err)

	_, err = New(config.RemoteConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}
