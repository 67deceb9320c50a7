package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/security"
)

// fakeS3 serves a fixed key set two keys per page.
type fakeS3 struct {
	objects map[string]string
	keys    []string
	fail    map[string]bool
	calls   int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	var matched []string
	for _, k := range f.keys[start:] {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			matched = append(matched, k)
		}
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for i, k := range matched {
		if i == 2 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(k)
			break
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.fail[key] {
		return nil, errors.New("access denied")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.objects[key]))}, nil
}

func newFake() *fakeS3 {
	f := &fakeS3{
		objects: map[string]string{
			"data/s1/accelerometer.csv": "epoch,x,y,z\n",
			"data/s1/gyroscope.csv":     "epoch,x,y,z\n",
			"data/s2/accelerometer.csv": "acc",
			"data/s2/":                  "",
			"notes/readme.txt":          "hi",
		},
		fail: map[string]bool{},
	}
	f.keys = []string{"data/s1/accelerometer.csv", "data/s1/gyroscope.csv", "data/s2/", "data/s2/accelerometer.csv", "notes/readme.txt"}
	return f
}

func TestS3Store_ListPaginates(t *testing.T) {
	fake := newFake()
	store := NewS3StoreWithClient(fake, "captures")

	objs, err := store.List(context.Background(), "data/")
	require.NoError(t, err)
	require.Len(t, objs, 4)
	assert.Equal(t, "data/s2/accelerometer.csv", objs[3].Key)
	assert.Equal(t, int64(3), objs[3].Size)
	assert.Equal(t, 2, fake.calls)
}

func TestS3Store_Get(t *testing.T) {
	store := NewS3StoreWithClient(newFake(), "captures")
	var buf bytes.Buffer
	require.NoError(t, store.Get(context.Background(), "notes/readme.txt", &buf))
	assert.Equal(t, "hi", buf.String())
}

func TestSync(t *testing.T) {
	fake := newFake()
	fake.fail["data/s2/accelerometer.csv"] = true
	store := NewS3StoreWithClient(fake, "captures")
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile(filepath.Join("local", "data/s1/gyroscope.csv"), []byte("old"), 0o644))

	res, err := Sync(context.Background(), store, "data/", fsys, "local")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("local", "data/s1/accelerometer.csv")}, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.NewData())

	got, err := fsys.ReadFile(filepath.Join("local", "data/s1/gyroscope.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "existing files are not overwritten")
	assert.False(t, fsys.Exists(filepath.Join("local", "data/s2/accelerometer.csv")))

	again, err := Sync(context.Background(), store, "data/s1/", fsys, "local")
	require.NoError(t, err)
	assert.False(t, again.NewData())
	assert.Equal(t, 2, again.Skipped)
}

func TestLocalPath(t *testing.T) {
	p, err := LocalPath("local", "rides/2024/acc.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("local", "rides", "2024", "acc.csv"), p)

	_, err = LocalPath("local", "../../etc/passwd")
	assert.ErrorIs(t, err, security.ErrTraversal)

	_, err = LocalPath("local", "data/folder/")
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) List(context.Context, string) ([]Object, error) {
	return nil, errors.New("offline")
}
func (failingStore) Get(context.Context, string, io.Writer) error { return nil }

func TestSync_ListFailure(t *testing.T) {
	_, err := Sync(context.Background(), failingStore{}, "", fsutil.NewMemoryFileSystem(), "local")
	assert.ErrorContains(t, err, "offline")
}
