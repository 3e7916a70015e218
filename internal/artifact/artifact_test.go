// AngelaMos | 2026
// artifact_test.go

package artifact

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalize(t *testing.T) {
	t.Run("downscales wide images", func(t *testing.T) {
		out, err := Normalize(pngBytes(t, 400, 200), 100)
		require.NoError(t, err)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})

	t.Run("keeps narrow images", func(t *testing.T) {
		out, err := Normalize(pngBytes(t, 40, 30), 100)
		require.NoError(t, err)

		cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 40, cfg.Width)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := Normalize([]byte("not an image"), 100)
		assert.ErrorIs(t, err, ErrInvalidImage)
	})
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		query string
		want  string
	}{
		{"cat", "cat_20260304050607.jpg"},
		{"red car!", "red_car_20260304050607.jpg"},
		{"  ../../etc/passwd  ", "etcpasswd_20260304050607.jpg"},
		{"snake_case   words ", "snake_case_words_20260304050607.jpg"},
		{"!!!", "image_20260304050607.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.query, now))
		})
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))

	key := Key("acct-1", "cat_20260304050607.jpg")

	first, err := store.Put(ctx, key, []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, "acct-1/cat_20260304050607.jpg", first)

	second, err := store.Put(ctx, key, []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, "acct-1/cat_20260304050607_2.jpg", second)

	p, err := store.Path(first)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	require.NoError(t, store.Delete(ctx, first))
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(ctx, first), "deleting twice is not an error")

	_, err = store.Put(ctx, filepath.Join("..", "escape.jpg"), []byte("x"))
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(in.Body)
	f.objects[aws.ToString(in.Key)] = buf.Bytes()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	store := &S3Store{client: fake, bucket: "artifacts"}
	require.NoError(t, store.Ping(ctx))

	first, err := store.Put(ctx, "acct/cat.jpg", []byte("one"))
	require.NoError(t, err)
	second, err := store.Put(ctx, "acct/cat.jpg", []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, "acct/cat.jpg", first)
	assert.Equal(t, "acct/cat_2.jpg", second)
	assert.Len(t, fake.objects, 2)

	require.NoError(t, store.Delete(ctx, first))
	assert.NotContains(t, fake.objects, first)
}
