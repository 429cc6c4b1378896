package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_LockBatchUnlock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Checkout(ctx)
	require.NoError(t, err)
	defer sess.Release()

	require.NoError(t, sess.Lock(ctx, "url"))
	assert.True(t, sess.Locked())
	assert.True(t, sess.InTransaction())

	results, err := sess.ExecBatch(ctx, []string{
		`INSERT INTO url (url, status) VALUES ('http://a', 1)`,
		s.Dialect().Placeholder(),
		`INSERT INTO url (url, status) VALUES ('http://b', 1)`,
		`UPDATE url SET status = 2 WHERE id = 1`,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(1), results[0].LastInsertID)
	assert.Equal(t, int64(0), results[1].LastInsertID)
	assert.Equal(t, int64(2), results[2].LastInsertID)
	assert.Equal(t, int64(0), results[3].LastInsertID, "UPDATE carries no insert id")
	assert.Equal(t, int64(1), results[3].RowsAffected)

	require.NoError(t, sess.Unlock(ctx))
	assert.False(t, sess.Locked())
	assert.False(t, sess.InTransaction())

	rows, err := s.Query(ctx, `SELECT id, status FROM url ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0]["status"])
}

func TestSession_RollbackDiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Checkout(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.Lock(ctx, "url"))
	_, err = sess.Exec(ctx, `INSERT INTO url (url) VALUES ('http://a')`)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))
	require.NoError(t, sess.Unlock(ctx))
	require.NoError(t, sess.Release())

	rows, err := s.Query(ctx, `SELECT * FROM url`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSession_LockIsExclusive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Lock(ctx, "url"))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired time.Time
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err := s.Checkout(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		defer second.Release()
		if err := second.Lock(ctx, "url"); err != nil {
			t.Error(err)
			second.Abort(ctx)
			return
		}
		mu.Lock()
		acquired = time.Now()
		mu.Unlock()
		_ = second.Unlock(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	released := time.Now()
	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, first.Release())
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, acquired.IsZero(), "second session never acquired the lock")
	assert.True(t, acquired.After(released), "second lock acquired while first was held")
}

func TestSession_AbortDiscardsConnection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Lock(ctx, "url"))
	_, err = sess.Exec(ctx, `INSERT INTO url (url) VALUES ('http://a')`)
	require.NoError(t, err)

	before := s.DB().Stats().OpenConnections
	sess.Abort(ctx)
	after := s.DB().Stats().OpenConnections
	assert.Equal(t, before-1, after, "aborted connection must not return to the pool")

	// Safe to call again, and the write was rolled back.
	sess.Abort(ctx)
	assert.NoError(t, sess.Release())

	rows, err := s.Query(ctx, `SELECT * FROM url`)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = sess.Query(ctx, `SELECT 1`)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_DeferredForeignKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.DB().Exec(`
		CREATE TABLE parent (id INTEGER PRIMARY KEY);
		CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent(id));
	`)
	require.NoError(t, err)

	sess, err := s.Checkout(ctx)
	require.NoError(t, err)
	defer sess.Release()

	require.NoError(t, sess.Lock(ctx, "child"))
	// The child precedes its parent inside the transaction.
	_, err = sess.ExecBatch(ctx, []string{
		`INSERT INTO child (id, parent_id) VALUES (1, 5)`,
		`INSERT INTO parent (id) VALUES (5)`,
	})
	require.NoError(t, err)
	require.NoError(t, sess.Unlock(ctx))
}
