package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
)

func newConfigService() *ConfigService {
	return NewConfigService(logger.New("error", "text"))
}

func TestConfigService_SetIsVersionGated(t *testing.T) {
	svc := newConfigService()

	updated, err := svc.Set(&models.StorageConfig{
		Rewrites: map[string]string{"/app/*": "/index.html"},
		Version:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)

	// A stale version is refused
	_, err = svc.Set(&models.StorageConfig{Version: 1})
	assert.ErrorIs(t, err, faults.ErrInvalidState)

	// The matching version goes through
	_, err = svc.Set(&models.StorageConfig{Version: 2})
	assert.NoError(t, err)
}

func TestConfigService_GetReturnsCopy(t *testing.T) {
	svc := newConfigService()

	_, err := svc.Set(&models.StorageConfig{
		Rewrites: map[string]string{"/a/*": "/a.html"},
		Version:  1,
	})
	require.NoError(t, err)

	got := svc.Get()
	got.Rewrites["/a/*"] = "/tampered.html"

	assert.Equal(t, "/a.html", svc.Get().Rewrites["/a/*"])
}

func TestConfigService_Patch(t *testing.T) {
	svc := newConfigService()

	_, err := svc.Set(&models.StorageConfig{
		Rewrites: map[string]string{"/app/*": "/index.html"},
		Version:  1,
	})
	require.NoError(t, err)

	patched, err := svc.Patch([]byte(`[
		{"op": "add", "path": "/redirects", "value": {"/old": {"location": "/new", "status_code": 301}}}
	]`))
	require.NoError(t, err)

	assert.Equal(t, "/new", patched.Redirects["/old"].Location)
	assert.Equal(t, 301, patched.Redirects["/old"].StatusCode)
	assert.Equal(t, "/index.html", patched.Rewrites["/app/*"])
	assert.Equal(t, uint64(3), patched.Version)
}

func TestConfigService_PatchRejectsMalformedDocument(t *testing.T) {
	svc := newConfigService()

	_, err := svc.Patch([]byte(`{"not": "a patch"}`))
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = svc.Patch([]byte(`[{"op": "replace", "path": "/rewrites/missing", "value": "/x"}]`))
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestConfigService_PatchCannotTouchVersion(t *testing.T) {
	svc := newConfigService()

	_, err := svc.Patch([]byte(`[{"op": "replace", "path": "/version", "value": 99}]`))
	assert.ErrorIs(t, err, faults.ErrValidation)
}
