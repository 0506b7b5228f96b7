package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

func TestLocalFS_RoundTrip(t *testing.T) {
	fs := New(t.TempDir())
	ctx := context.Background()

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: "renders/abc123.mp4",
		Reader:    strings.NewReader("video-bytes"),
		Size:      -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "renders/abc123.mp4", out.ObjectKey)
	assert.EqualValues(t, 11, out.Size)

	rc, ct, size, err := fs.GetObject(ctx, out.ObjectKey)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(body))
	assert.NotEmpty(t, ct)
	assert.EqualValues(t, 11, size)

	require.NoError(t, fs.DeleteObject(ctx, out.ObjectKey))
	require.NoError(t, fs.DeleteObject(ctx, out.ObjectKey))

	_, _, _, err = fs.GetObject(ctx, out.ObjectKey)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestLocalFS_RejectsEscapingKeys(t *testing.T) {
	fs := New(t.TempDir())

	for _, key := range []string{"", "../x.mp4", "a/../../x.mp4"} {
		_, err := fs.PutObject(context.Background(), ports.PutObjectInput{ObjectKey: key, Reader: strings.NewReader("x")})
		require.Error(t, err, key)
		assert.Equal(t, errors.CodeValidation, errors.GetCode(err), key)
	}
}

func TestLocalFS_Ping(t *testing.T) {
	fs := New(t.TempDir() + "/nested/root")
	require.NoError(t, fs.Ping(context.Background()))
	assert.Equal(t, "localfs", fs.Provider())
}
