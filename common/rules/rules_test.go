package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

func candidate(fullPath string, headers ...models.HeaderField) *models.Asset {
	return &models.Asset{
		Key: models.AssetKey{
			FullPath:   fullPath,
			Collection: DappCollection,
		},
		Headers: headers,
	}
}

func TestRegistry_SeededWithDapp(t *testing.T) {
	r := NewRegistry()

	rule, err := r.Get(DappCollection)
	require.NoError(t, err)
	assert.Equal(t, models.AffinityHeap, rule.Affinity)

	_, err = r.Get("#unknown")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestRegistry_SetVersionGate(t *testing.T) {
	r := NewRegistry()

	created, err := r.Set(&models.CollectionRule{Collection: "images", Affinity: models.AffinityStable})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.Version)

	// Updating with a stale version is refused
	stale := *created
	stale.Version = 0
	_, err = r.Set(&stale)
	assert.ErrorIs(t, err, faults.ErrInvalidState)

	updated, err := r.Set(created)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)
}

func TestRegistry_SetRejectsBadInput(t *testing.T) {
	r := NewRegistry()

	_, err := r.Set(&models.CollectionRule{Affinity: models.AffinityHeap})
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = r.Set(&models.CollectionRule{Collection: "x", Affinity: "tape"})
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = r.Set(&models.CollectionRule{
		Collection: "x",
		Affinity:   models.AffinityHeap,
		Guard:      "asset.total_length >",
	})
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestRegistry_DeleteProtectsReserved(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Delete(DappCollection), faults.ErrValidation)
	assert.ErrorIs(t, r.Delete("ghost"), faults.ErrNotFound)

	_, err := r.Set(&models.CollectionRule{Collection: "tmp", Affinity: models.AffinityHeap})
	require.NoError(t, err)
	require.NoError(t, r.Delete("tmp"))
}

func TestRegistry_AdmitMaxSize(t *testing.T) {
	r := NewRegistry()

	limit := int64(100)
	rule, err := r.Get(DappCollection)
	require.NoError(t, err)
	rule.MaxSize = &limit
	_, err = r.Set(rule)
	require.NoError(t, err)

	assert.NoError(t, r.Admit(candidate("/small.txt"), 100))
	assert.ErrorIs(t, r.Admit(candidate("/big.txt"), 101), faults.ErrValidation)
}

func TestGuardEvaluator_Allow(t *testing.T) {
	e := NewGuardEvaluator()

	rule := &models.CollectionRule{
		Collection: DappCollection,
		Guard:      `asset.total_length < 1000u && asset.headers["Content-Type"] == "text/html"`,
	}

	html := candidate("/page.html", models.HeaderField{Name: "Content-Type", Value: "text/html"})
	assert.NoError(t, e.Allow(rule, html, 512))

	// Over the size bound
	assert.ErrorIs(t, e.Allow(rule, html, 4096), faults.ErrPermissionDenied)

	// Missing header key errors inside CEL and denies
	bare := candidate("/page.html")
	assert.Error(t, e.Allow(rule, bare, 512))
}

func TestGuardEvaluator_EmptyGuardAllows(t *testing.T) {
	e := NewGuardEvaluator()

	assert.NoError(t, e.Allow(nil, candidate("/x"), 0))
	assert.NoError(t, e.Allow(&models.CollectionRule{Collection: "x"}, candidate("/x"), 0))
}

func TestGuardEvaluator_NonBooleanGuard(t *testing.T) {
	e := NewGuardEvaluator()

	rule := &models.CollectionRule{Collection: "x", Guard: `asset.full_path`}
	assert.ErrorIs(t, e.Allow(rule, candidate("/x"), 0), faults.ErrValidation)
}
