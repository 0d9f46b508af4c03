package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func task(user, id string, key int64) todo.Task {
	return todo.Task{
		ID: id, UserID: user, Title: "task " + id, OrderIndex: key,
		Priority: todo.PriorityNormal, Status: todo.StatusPlanned,
		CreatedAt: t0, UpdatedAt: t0,
	}
}

// countingBackend keeps the file in memory and counts saves.
type countingBackend struct {
	file  *todo.File
	saves int
}

func (b *countingBackend) Load(context.Context) (*todo.File, error) {
	if b.file == nil {
		return todo.NewFile(), nil
	}
	data, err := b.file.Encode()
	if err != nil {
		return nil, err
	}
	return todo.Decode(data)
}

func (b *countingBackend) Save(_ context.Context, f *todo.File) error {
	b.saves++
	b.file = f
	return nil
}

func (b *countingBackend) Location() string { return "memory" }

func TestLocalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	s := New(Local{Path: path})
	ctx := context.Background()

	assert.True(t, Missing(s.Backend()))
	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Insert(ctx, task("alice", "a", 10000)))
	require.NoError(t, s.Insert(ctx, task("alice", "b", 20000)))
	require.NoError(t, s.Insert(ctx, task("bob", "x", 10000)))
	assert.False(t, Missing(s.Backend()))

	f, err := todo.Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Tasks, 3)

	got, err := s.Get(ctx, "alice", "b")
	require.NoError(t, err)
	assert.Equal(t, "task b", got.Title)
	_, err = s.Get(ctx, "bob", "a")
	require.ErrorIs(t, err, todo.ErrNotFound)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tasks.UserStats{{User: "alice", Total: 2}, {User: "bob", Total: 1}}, users)

	require.NoError(t, s.Delete(ctx, "bob", "x"))
	require.ErrorIs(t, s.Delete(ctx, "bob", "x"), todo.ErrNotFound)
}

func TestWindowQueries(t *testing.T) {
	b := &countingBackend{}
	s := New(b)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Insert(ctx, task("alice", id, int64(i+1)*10000)))
	}

	k := orderindex.KeyPtr
	tests := []struct {
		name string
		q    orderindex.WindowQuery
		want []string
	}{
		{name: "ascending from", q: orderindex.WindowQuery{Lower: k(15000), Limit: 2}, want: []string{"b", "c"}},
		{name: "descending below", q: orderindex.WindowQuery{Upper: k(29999), Direction: orderindex.Descending}, want: []string{"b", "a"}},
		{name: "bounded", q: orderindex.WindowQuery{Lower: k(20000), Upper: k(30000)}, want: []string{"b", "c"}},
		{name: "nothing", q: orderindex.WindowQuery{Lower: k(50000)}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Window(ctx, "alice", tt.q)
			require.NoError(t, err)
			got := make([]string, len(rows))
			for i, r := range rows {
				got[i] = r.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}

	minKey, ok, err := s.MinKey(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orderindex.Key(10000), minKey)
	maxKey, ok, err := s.MaxKey(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orderindex.Key(40000), maxKey)
	_, ok, err = s.MaxKey(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchIsOneSave(t *testing.T) {
	b := &countingBackend{}
	s := New(b)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, task("alice", id, int64(i+1))))
	}
	b.saves = 0

	svc, err := orderindex.New(s, orderindex.DefaultSpace())
	require.NoError(t, err)
	out, err := svc.Rebalance(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 1, b.saves)

	err = s.UpdateKeys(ctx, "alice", []orderindex.Assignment{{ID: "a", Key: 5}, {ID: "zz", Key: 6}})
	require.ErrorIs(t, err, todo.ErrNotFound)
	assert.Equal(t, 1, b.saves)
	a, err := s.Get(ctx, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), a.OrderIndex)
}

func TestInvalidFileIsNotSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	s := New(Local{Path: path})
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, task("alice", "a", 10000)))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	bad := task("alice", "b", 20000)
	bad.Priority = "whenever"
	err = s.Insert(ctx, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpen(t *testing.T) {
	b, err := Open("/tmp/tasks.json", Remote{})
	require.NoError(t, err)
	assert.Equal(t, Local{Path: "/tmp/tasks.json"}, b)

	b, err = Open("minio://ordo/alice/tasks.json", Remote{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "minio://ordo/alice/tasks.json", b.Location())

	for _, loc := range []string{"", "minio://", "minio://bucket", "minio:///key"} {
		_, err := Open(loc, Remote{Endpoint: "localhost:9000"})
		assert.Error(t, err, loc)
	}
	_, err = Open("minio://ordo/tasks.json", Remote{})
	assert.Error(t, err)
}

// TestObjectIntegration needs a running MinIO; set ORDO_TEST_MINIO_ENDPOINT.
func TestObjectIntegration(t *testing.T) {
	endpoint := os.Getenv("ORDO_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("ORDO_TEST_MINIO_ENDPOINT not set")
	}
	b, err := Open("minio://ordo-test/"+t.Name()+".json", Remote{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)

	obj := b.(*Object)
	ctx := context.Background()
	exists, err := obj.client.BucketExists(ctx, obj.bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		t.Skipf("bucket %s does not exist", obj.bucket)
	}

	s := New(b)
	require.NoError(t, s.Insert(ctx, task("alice", "a", 10000)))
	got, err := s.Get(ctx, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "task a", got.Title)
	require.NoError(t, s.Delete(ctx, "alice", "a"))
}
