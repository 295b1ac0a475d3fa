package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-hub/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testAddress(t *testing.T, text string) models.Address {
	t.Helper()
	addr, err := models.ParseAddress(text)
	require.NoError(t, err)
	return addr
}

func htmlResult(body string) models.RawResult {
	return models.RawResult{
		Kind:      models.RawHTML,
		URL:       "https://example.test/p",
		HTML:      body,
		FetchedAt: time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC),
	}
}

// runStoreContract exercises the behaviour every backend must share
func runStoreContract(t *testing.T, newStore func(t *testing.T, opts Options) Store) {
	ctx := context.Background()

	t.Run("set then get returns what was written", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, Options{TTL: time.Hour, Now: clock.Now})
		addr := testAddress(t, "12 Smith St, Richmond VIC 3121")

		raw := models.RawResult{Kind: models.RawJSON, Data: json.RawMessage(`{"yearBuilt":1990}`), FetchedAt: clock.Now()}
		require.NoError(t, s.Set(ctx, addr, models.SourceCoreLogic, raw))

		e, ok := s.Get(ctx, addr, models.SourceCoreLogic)
		require.True(t, ok)
		assert.Equal(t, models.RawJSON, e.Data.Kind)
		assert.JSONEq(t, `{"yearBuilt":1990}`, string(e.Data.Data))
		assert.True(t, e.Timestamp.Equal(clock.Now()))
		assert.Equal(t, addr, e.Address)
		assert.Equal(t, models.SourceCoreLogic, e.Source)
		assert.True(t, s.Has(ctx, addr, models.SourceCoreLogic))
	})

	t.Run("key is normalized address and source", func(t *testing.T) {
		s := newStore(t, Options{TTL: time.Hour, Now: newFakeClock().Now})
		a := testAddress(t, "12 Smith St, Richmond VIC 3121")
		b := testAddress(t, "12 smith street, Richmond, Victoria 3121")

		require.NoError(t, s.Set(ctx, a, models.SourceDomain, htmlResult("domain")))

		e, ok := s.Get(ctx, b, models.SourceDomain)
		require.True(t, ok)
		assert.Equal(t, "domain", e.Data.HTML)
		assert.False(t, s.Has(ctx, b, models.SourceREA))
	})

	t.Run("overwrite keeps a single entry", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, Options{TTL: time.Hour, Now: clock.Now})
		addr := testAddress(t, "1 King William St, Adelaide SA 5000")

		require.NoError(t, s.Set(ctx, addr, models.SourceREA, htmlResult("first")))
		clock.Advance(time.Minute)
		require.NoError(t, s.Set(ctx, addr, models.SourceREA, htmlResult("second")))

		e, ok := s.Get(ctx, addr, models.SourceREA)
		require.True(t, ok)
		assert.Equal(t, "second", e.Data.HTML)
		assert.True(t, e.Timestamp.Equal(clock.Now()))
	})

	t.Run("entries older than ttl are not returned", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, Options{TTL: time.Hour, Now: clock.Now})
		addr := testAddress(t, "12 Smith St, Richmond VIC 3121")

		require.NoError(t, s.Set(ctx, addr, models.SourceMicroburbs, htmlResult("x")))
		clock.Advance(59 * time.Minute)
		assert.True(t, s.Has(ctx, addr, models.SourceMicroburbs))

		clock.Advance(2 * time.Minute)
		_, ok := s.Get(ctx, addr, models.SourceMicroburbs)
		assert.False(t, ok)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, Options{Now: clock.Now})
		addr := testAddress(t, "12 Smith St, Richmond VIC 3121")

		require.NoError(t, s.Set(ctx, addr, models.SourcePropertyCom, htmlResult("x")))
		clock.Advance(24 * 365 * time.Hour)
		assert.True(t, s.Has(ctx, addr, models.SourcePropertyCom))

		n, err := s.ClearExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("clear expired removes only stale entries", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, Options{TTL: time.Hour, Now: clock.Now})
		old := testAddress(t, "12 Smith St, Richmond VIC 3121")
		fresh := testAddress(t, "7 Beach Rd, St Kilda VIC 3182")

		require.NoError(t, s.Set(ctx, old, models.SourceDomain, htmlResult("old")))
		clock.Advance(2 * time.Hour)
		require.NoError(t, s.Set(ctx, fresh, models.SourceDomain, htmlResult("fresh")))

		n, err := s.ClearExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.True(t, s.Has(ctx, fresh, models.SourceDomain))
		assert.False(t, s.Has(ctx, old, models.SourceDomain))
	})

	t.Run("delete and clear", func(t *testing.T) {
		s := newStore(t, Options{TTL: time.Hour, Now: newFakeClock().Now})
		a := testAddress(t, "12 Smith St, Richmond VIC 3121")
		b := testAddress(t, "7 Beach Rd, St Kilda VIC 3182")

		require.NoError(t, s.Set(ctx, a, models.SourceDomain, htmlResult("a")))
		require.NoError(t, s.Set(ctx, b, models.SourceDomain, htmlResult("b")))

		require.NoError(t, s.Delete(ctx, a, models.SourceDomain))
		require.NoError(t, s.Delete(ctx, a, models.SourceDomain), "deleting a missing entry is not an error")
		assert.False(t, s.Has(ctx, a, models.SourceDomain))
		assert.True(t, s.Has(ctx, b, models.SourceDomain))

		require.NoError(t, s.Clear(ctx))
		assert.False(t, s.Has(ctx, b, models.SourceDomain))
	})

	t.Run("concurrent writers leave one intact entry", func(t *testing.T) {
		s := newStore(t, Options{TTL: time.Hour})
		addr := testAddress(t, "12 Smith St, Richmond VIC 3121")

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, addr, models.SourceDomain, htmlResult(fmt.Sprintf("writer-%d", i))))
			}(i)
		}
		wg.Wait()

		e, ok := s.Get(ctx, addr, models.SourceDomain)
		require.True(t, ok)
		assert.Regexp(t, `^writer-\d$`, e.Data.HTML)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, opts Options) Store {
		return NewMemoryStore(opts)
	})
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, opts Options) Store {
		s, err := NewFileStore(t.TempDir(), opts)
		require.NoError(t, err)
		return s
	})
}

func TestFileStoreTreatsCorruptFileAsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, Options{})
	require.NoError(t, err)

	addr := testAddress(t, "12 Smith St, Richmond VIC 3121")
	require.NoError(t, s.Set(ctx, addr, models.SourceDomain, htmlResult("ok")))
	require.NoError(t, os.WriteFile(s.path(addr, models.SourceDomain), []byte("{not json"), 0644))

	_, ok := s.Get(ctx, addr, models.SourceDomain)
	assert.False(t, ok)

	n, err := s.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files must not be left behind")
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, opts Options) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), opts)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PROPERTYHUB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PROPERTYHUB_TEST_DATABASE_URL not set")
	}

	runStoreContract(t, func(t *testing.T, opts Options) Store {
		s, err := NewPostgresStore(context.Background(), url, opts)
		require.NoError(t, err)
		require.NoError(t, s.Clear(context.Background()))
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Backend: "redis"})
	assert.Error(t, err)

	s, closeFn, err := Open(context.Background(), Config{Backend: "sqlite", DBPath: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, closeFn())
}
