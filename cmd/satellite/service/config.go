package service

import (
	"encoding/json"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/validation"
)

// ConfigService holds the storage and routing configuration applied on the
// serve path. Writes are version gated so concurrent admins cannot
// silently overwrite each other.
type ConfigService struct {
	mu        sync.RWMutex
	current   *models.StorageConfig
	validator *validation.PatchValidator
	log       *logger.Logger
}

// NewConfigService creates a config service with an empty configuration
func NewConfigService(log *logger.Logger) *ConfigService {
	return &ConfigService{
		current:   &models.StorageConfig{Version: 1},
		validator: validation.NewPatchValidator(),
		log:       log,
	}
}

// Get returns a copy of the current configuration
func (s *ConfigService) Get() *models.StorageConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Set replaces the configuration. The submitted version must match the
// current one.
func (s *ConfigService) Set(cfg *models.StorageConfig) (*models.StorageConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Version != s.current.Version {
		return nil, faults.InvalidState("config is at version %d, got %d", s.current.Version, cfg.Version)
	}

	next := cfg.Clone()
	next.Version = s.current.Version + 1
	s.current = next

	s.log.Info("storage config replaced", "version", next.Version)
	return next.Clone(), nil
}

// Patch applies an RFC 6902 JSON patch to the current configuration
func (s *ConfigService) Patch(patchDocument []byte) (*models.StorageConfig, error) {
	if err := s.validator.Validate(patchDocument); err != nil {
		return nil, err
	}

	patch, err := jsonpatch.DecodePatch(patchDocument)
	if err != nil {
		return nil, faults.Validation("malformed patch document: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentJSON, err := json.Marshal(s.current)
	if err != nil {
		return nil, err
	}

	patchedJSON, err := patch.Apply(currentJSON)
	if err != nil {
		return nil, faults.Validation("patch does not apply: %v", err)
	}

	var next models.StorageConfig
	if err := json.Unmarshal(patchedJSON, &next); err != nil {
		return nil, faults.Validation("patched config is not valid: %v", err)
	}

	next.Version = s.current.Version + 1
	s.current = &next

	s.log.Info("storage config patched", "version", next.Version)
	return next.Clone(), nil
}
