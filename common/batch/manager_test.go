package batch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	return NewManagerWithClock(5*time.Minute, clock.Now), clock
}

func testKey(owner uuid.UUID) models.AssetKey {
	return models.AssetKey{
		Name:       "hello.txt",
		FullPath:   "/hello.txt",
		Collection: "#dapp",
		Owner:      owner,
	}
}

func TestCreateBatch_SequentialIDs(t *testing.T) {
	m, _ := newManager(t)
	owner := uuid.New()

	b1 := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)
	b2 := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)

	assert.Equal(t, uint64(1), b1.ID)
	assert.Equal(t, uint64(2), b2.ID)
}

func TestCreateChunk_UnknownBatch(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.CreateChunk(42, 0, []byte("x"))
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestPrepare_OrdersChunksByIndex(t *testing.T) {
	m, _ := newManager(t)
	owner := uuid.New()
	b := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)

	// Upload out of order on purpose
	_, err := m.CreateChunk(b.ID, 1, []byte("world"))
	require.NoError(t, err)
	_, err = m.CreateChunk(b.ID, 0, []byte("hello "))
	require.NoError(t, err)

	_, content, err := m.Prepare(b.ID, owner)
	require.NoError(t, err)
	require.Len(t, content, 2)
	assert.Equal(t, []byte("hello "), content[0])
	assert.Equal(t, []byte("world"), content[1])
}

func TestPrepare_Failures(t *testing.T) {
	m, _ := newManager(t)
	owner := uuid.New()
	b := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)

	// Zero chunks
	_, _, err := m.Prepare(b.ID, owner)
	assert.ErrorIs(t, err, faults.ErrValidation)

	// Wrong caller
	_, err2 := m.CreateChunk(b.ID, 0, []byte("x"))
	require.NoError(t, err2)
	_, _, err = m.Prepare(b.ID, uuid.New())
	assert.ErrorIs(t, err, faults.ErrPermissionDenied)

	// Missing batch
	_, _, err = m.Prepare(99, owner)
	assert.ErrorIs(t, err, faults.ErrNotFound)

	// Failed prepares leave the batch intact
	assert.Equal(t, 1, m.Len())
}

func TestClearExpired_PurgesBatchAndChunks(t *testing.T) {
	m, clock := newManager(t)
	owner := uuid.New()
	b := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)
	_, err := m.CreateChunk(b.ID, 0, []byte("x"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	m.ClearExpired()

	assert.Equal(t, 0, m.Len())
	_, _, err = m.Prepare(b.ID, owner)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestCreateChunk_ExtendsExpiry(t *testing.T) {
	m, clock := newManager(t)
	owner := uuid.New()
	b := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)

	// Keep the session alive with uploads spaced under the TTL
	for i := 0; i < 3; i++ {
		clock.Advance(4 * time.Minute)
		_, err := m.CreateChunk(b.ID, i, []byte("x"))
		require.NoError(t, err)
	}

	_, content, err := m.Prepare(b.ID, owner)
	require.NoError(t, err)
	assert.Len(t, content, 3)
}

func TestRemove_PurgesAfterCommit(t *testing.T) {
	m, _ := newManager(t)
	owner := uuid.New()
	b := m.CreateBatch(testKey(owner), models.EncodingIdentity, nil)
	_, err := m.CreateChunk(b.ID, 0, []byte("x"))
	require.NoError(t, err)

	m.Remove(b.ID)

	assert.Equal(t, 0, m.Len())
	_, _, err = m.Prepare(b.ID, owner)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}
