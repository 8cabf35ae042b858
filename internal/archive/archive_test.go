package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchscale/benchscale/internal/database"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	failKey string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+key] = string(body)
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func TestUploadDir(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"data/richards.csv":         "a",
		"data/richards-cpython.csv": "b",
		"scaling.csv":               "c",
		"notes.json":                "{}",
	})
	fake := newFakeS3()
	u := &Uploader{Client: fake, Bucket: "bench", Prefix: "runs/s1", Concurrency: 2}

	n, err := u.UploadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{
		"bench/runs/s1/data/richards-cpython.csv",
		"bench/runs/s1/data/richards.csv",
		"bench/runs/s1/notes.json",
		"bench/runs/s1/scaling.csv",
	}, fake.keys())
	assert.Equal(t, "b", fake.objects["bench/runs/s1/data/richards-cpython.csv"])
	assert.Equal(t, "text/csv", fake.types["runs/s1/scaling.csv"])
	assert.Equal(t, "application/json", fake.types["runs/s1/notes.json"])
}

func TestUploadDir_NoPrefix(t *testing.T) {
	dir := writeTree(t, map[string]string{"scaling.csv": "c"})
	fake := newFakeS3()
	_, err := (&Uploader{Client: fake, Bucket: "b"}).UploadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"b/scaling.csv"}, fake.keys())
}

func TestUploadDir_Error(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.csv": "a", "b.csv": "b"})
	fake := newFakeS3()
	fake.failKey = "p/b.csv"
	_, err := (&Uploader{Client: fake, Bucket: "b", Prefix: "p"}).UploadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p/b.csv")
}

func TestUploadDir_MissingDir(t *testing.T) {
	_, err := (&Uploader{Client: newFakeS3()}).UploadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestSessionPrefix(t *testing.T) {
	now := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	a, b := SessionPrefix("runs/", now), SessionPrefix("runs", now)
	assert.True(t, strings.HasPrefix(a, "runs/20210501T120000Z-"), a)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(SessionPrefix("", now), "20210501T120000Z-"))
}

func TestSnapshot(t *testing.T) {
	repo := database.NewMockRepo()
	ts := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.Seed(database.ModeInterpreted, database.DataItem{Workload: "richards", Timestamp: ts, Runtime: 2, HardwareID: "hw"})
	repo.Seed(database.ModeCompiled,
		database.DataItem{Workload: "richards", Timestamp: ts, Runtime: 0.5, Revision: "r1", HardwareID: "hw"},
		database.DataItem{Workload: "richards", Timestamp: ts.Add(time.Hour), Runtime: 0.4, Revision: "r2", HardwareID: "hw"},
	)
	require.NoError(t, repo.AppendScalingItems(context.Background(), []database.ScalingItem{{
		Workload: "richards", Factor: 1.5,
		OldHardware: "a", OldRuntimeVersion: "3.8", NewHardware: "b", NewRuntimeVersion: "3.8",
	}}))

	dir := t.TempDir()
	require.NoError(t, Snapshot(context.Background(), repo, dir))

	fs := database.NewFileStore(dir)
	data, err := fs.LoadData(context.Background())
	require.NoError(t, err)
	require.Len(t, data.Runs["richards"], 2)
	assert.Equal(t, "r1", data.Runs["richards"][0].Revision)
	require.Len(t, data.Baselines["richards"], 1)

	items, err := fs.ListScalingItems(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1.5, items[0].Factor)
}

func TestPublish(t *testing.T) {
	repo := database.NewMockRepo()
	ts := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.Seed(database.ModeInterpreted, database.DataItem{Workload: "richards", Timestamp: ts, Runtime: 2, HardwareID: "hw"})
	repo.Seed(database.ModeCompiled, database.DataItem{Workload: "richards", Timestamp: ts, Runtime: 0.5, HardwareID: "hw"})

	s3c := newFakeS3()
	u := &Uploader{Client: s3c, Bucket: "bkt", Prefix: "p"}
	n, err := u.Publish(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, k := range s3c.keys() {
		assert.True(t, strings.HasPrefix(k, "bkt/p/data/"), k)
		assert.True(t, strings.HasSuffix(k, ".csv"), k)
	}
}
