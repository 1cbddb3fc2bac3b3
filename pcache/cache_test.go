package pcache

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagedupes/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls atomic.Int64
	delay time.Duration
	fail  map[string]error
}

func (l *countingLoader) load(ctx context.Context, key string) (types.FingerprintRecord, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err, ok := l.fail[key]; ok {
		return types.FingerprintRecord{}, err
	}
	return types.FingerprintRecord{Key: key, FileName: key, FileSize: int64(len(key)), Width: 10, Height: 10}, nil
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestCache(t *testing.T, loader Loader, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(context.Background(), loader, opts...)
	require.NoError(t, err)
	return c
}

func TestConcurrentSubmitsLoadOnce(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	c := newTestCache(t, loader.load, WithWorkers(4))

	var wg sync.WaitGroup
	handles := make([]*Handle, 50)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Submit("a.jpg")
		}(i)
	}
	wg.Wait()
	c.AwaitAll()

	for _, h := range handles {
		rec, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a.jpg", rec.Key)
	}
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.Equal(t, 1, c.Stats().Entries)
	require.NoError(t, c.Close(context.Background()))
}

func TestWorkerBound(t *testing.T) {
	var running, peak atomic.Int64
	loader := func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return types.FingerprintRecord{Key: key}, nil
	}
	c := newTestCache(t, loader, WithWorkers(2))

	for i := 0; i < 20; i++ {
		c.Submit(fmt.Sprintf("img-%02d.png", i))
	}
	c.AwaitAll()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Len(t, c.Records(), 20)
}

func TestSubmitQueuesForFixedPool(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	loader := func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		started.Add(1)
		<-release
		return types.FingerprintRecord{Key: key}, nil
	}

	before := runtime.NumGoroutine()
	c := newTestCache(t, loader, WithWorkers(4))

	const keys = 20000
	handles := make([]*Handle, 0, keys)
	for i := 0; i < keys; i++ {
		handles = append(handles, c.Submit(fmt.Sprintf("/photos/%05d.jpg", i)))
	}

	assert.Eventually(t, func() bool { return started.Load() == 4 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, runtime.NumGoroutine()-before, 4+8)
	assert.Equal(t, int64(4), started.Load())

	close(release)
	c.AwaitAll()
	for _, h := range handles[:10] {
		rec, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, h.Key(), rec.Key)
	}
	assert.Equal(t, int64(keys), c.Stats().Loads)

	require.NoError(t, c.Close(context.Background()))
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+2 }, time.Second, 5*time.Millisecond)
}

func TestGetReturnsCachedRecord(t *testing.T) {
	loader := &countingLoader{}
	c := newTestCache(t, loader.load)

	first, err := c.Get(context.Background(), "b.png")
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "b.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestFailuresAreIsolatedAndRemembered(t *testing.T) {
	boom := errors.New("disk on fire")
	loader := &countingLoader{fail: map[string]error{"bad.jpg": boom}}
	c := newTestCache(t, loader.load)

	for _, key := range []string{"ok1.jpg", "bad.jpg", "ok2.jpg"} {
		c.Submit(key)
	}
	c.AwaitAll()

	_, err := c.Get(context.Background(), "bad.jpg")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(3), loader.calls.Load())

	assert.Len(t, c.Records(), 2)
	failures := c.Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures["bad.jpg"], boom)

	summary := c.FailureSummary()
	require.Error(t, summary)
	assert.Contains(t, summary.Error(), "bad.jpg")
}

func TestPanicBecomesFailure(t *testing.T) {
	loader := func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		if key == "explode.gif" {
			panic("decoder blew up")
		}
		return types.FingerprintRecord{Key: key}, nil
	}
	c := newTestCache(t, loader)

	_, err := c.Get(context.Background(), "explode.gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder blew up")

	rec, err := c.Get(context.Background(), "fine.gif")
	require.NoError(t, err)
	assert.Equal(t, "fine.gif", rec.Key)
}

func TestLoaderKeyIsAuthoritative(t *testing.T) {
	loader := func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		return types.FingerprintRecord{Key: "something-else"}, nil
	}
	c := newTestCache(t, loader)

	rec, err := c.Get(context.Background(), "real.png")
	require.NoError(t, err)
	assert.Equal(t, "real.png", rec.Key)
}

func TestSnapshotRoundTripSkipsRecomputation(t *testing.T) {
	store := NewMemoryStore()
	keys := []string{"a.jpg", "b.jpg", "c.jpg"}

	first := &countingLoader{}
	c1 := newTestCache(t, first.load, WithStore(store))
	for _, k := range keys {
		c1.Submit(k)
	}
	c1.AwaitAll()
	want := c1.All()
	require.NoError(t, c1.Close(context.Background()))

	second := &countingLoader{}
	c2 := newTestCache(t, second.load, WithStore(store))
	for _, k := range keys {
		c2.Submit(k)
	}
	c2.AwaitAll()

	assert.Equal(t, int64(0), second.calls.Load())
	assert.Equal(t, want, c2.All())
	assert.Equal(t, 3, c2.Stats().Restored)
}

func TestRestoreDoesNotOverwrite(t *testing.T) {
	store := NewMemoryStore()
	blob, err := encodeSnapshot(snapshotPayload{
		Version: snapshotVersion,
		Name:    DefaultName,
		Entries: map[string]types.FingerprintRecord{
			"a.jpg": {Key: "a.jpg", FileSize: 111},
			"b.jpg": {Key: "b.jpg", FileSize: 222},
		},
	})
	require.NoError(t, err)

	loader := &countingLoader{}
	c := newTestCache(t, loader.load)
	_, err = c.Get(context.Background(), "a.jpg")
	require.NoError(t, err)

	c.store = store
	require.NoError(t, store.Put(context.Background(), DefaultName, blob))
	require.NoError(t, c.Restore(context.Background()))

	all := c.All()
	assert.Equal(t, int64(len("a.jpg")), all["a.jpg"].FileSize)
	assert.Equal(t, int64(222), all["b.jpg"].FileSize)
	assert.Equal(t, 1, c.Stats().Restored)
}

func TestCorruptSnapshot(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), DefaultName, []byte("definitely not zstd")))

	loader := &countingLoader{}
	_, err := New(context.Background(), loader.load, WithStore(store), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrCacheCorruption)

	c, err := New(context.Background(), loader.load, WithStore(store),
		WithLogger(quietLogger()), WithResetOnCorruption(true))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestSnapshotForAnotherCacheIsCorrupt(t *testing.T) {
	store := NewMemoryStore()
	blob, err := encodeSnapshot(snapshotPayload{Version: snapshotVersion, Name: "thumbnails"})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), DefaultName, blob))

	_, err = New(context.Background(), (&countingLoader{}).load, WithStore(store), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrCacheCorruption)
}

type failingStore struct{ MemoryStore }

func (s *failingStore) Get(ctx context.Context, name string) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func TestStoreReadErrorIsNotCorruption(t *testing.T) {
	_, err := New(context.Background(), (&countingLoader{}).load,
		WithStore(&failingStore{}), WithLogger(quietLogger()), WithResetOnCorruption(true))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheCorruption)
}

func TestClosedCacheRejectsWork(t *testing.T) {
	loader := &countingLoader{}
	c := newTestCache(t, loader.load)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	_, err := c.Get(context.Background(), "late.png")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int64(0), loader.calls.Load())
}

func TestCloseWaitsForInflight(t *testing.T) {
	store := NewMemoryStore()
	loader := &countingLoader{delay: 30 * time.Millisecond}
	c := newTestCache(t, loader.load, WithStore(store))

	c.Submit("slow.tif")
	require.NoError(t, c.Close(context.Background()))

	blob, err := store.Get(context.Background(), DefaultName)
	require.NoError(t, err)
	payload, err := decodeSnapshot(blob, DefaultName)
	require.NoError(t, err)
	assert.Contains(t, payload.Entries, "slow.tif")
}

func TestHandleWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) (types.FingerprintRecord, error) {
		<-release
		return types.FingerprintRecord{Key: key}, nil
	}
	c := newTestCache(t, loader)

	h := c.Submit("blocked.png")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-h.Done()
	assert.Equal(t, "blocked.png", h.Key())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	loader := &countingLoader{fail: map[string]error{"bad.png": errors.New("nope")}}
	c := newTestCache(t, loader.load, WithMetrics(m), WithStore(NewMemoryStore()))

	_, _ = c.Get(context.Background(), "good.png")
	_, _ = c.Get(context.Background(), "good.png")
	_, _ = c.Get(context.Background(), "bad.png")
	require.NoError(t, c.Close(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Loads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Entries))
	assert.Greater(t, testutil.ToFloat64(m.SnapshotBytes), 0.0)

	_, err = NewMetrics(reg, "test")
	assert.Error(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
	_, err = New(context.Background(), (&countingLoader{}).load, WithWorkers(0))
	assert.Error(t, err)
	_, err = New(context.Background(), (&countingLoader{}).load, WithName(""))
	assert.Error(t, err)
}
