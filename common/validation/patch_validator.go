package validation

import (
	"encoding/json"
	"strings"

	"github.com/junobuild/satellite/common/faults"
)

// maxPatchOperations caps how many operations one patch may carry
const maxPatchOperations = 50

// patchOperation is the subset of an RFC 6902 operation needed to vet it
type patchOperation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// PatchValidator vets configuration patch documents before they apply:
// only known operations, no writes to managed fields, bounded size
type PatchValidator struct{}

// NewPatchValidator creates a patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// Validate checks the raw patch document. The document must still be
// applied through a real JSON Patch implementation; this pass only
// rejects patches that could never be acceptable.
func (v *PatchValidator) Validate(patchDocument []byte) error {
	var operations []patchOperation
	if err := json.Unmarshal(patchDocument, &operations); err != nil {
		return faults.Validation("patch document must be a JSON array of operations: %v", err)
	}

	if len(operations) == 0 {
		return faults.Validation("patch document has no operations")
	}
	if len(operations) > maxPatchOperations {
		return faults.Validation("patch document has %d operations, limit is %d", len(operations), maxPatchOperations)
	}

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
	}
	return nil
}

func (v *PatchValidator) validateOperation(op patchOperation, index int) error {
	switch op.Op {
	case "add", "replace", "test":
		if op.Value == nil {
			return faults.Validation("operation %d: %q requires a value", index, op.Op)
		}
	case "remove", "move", "copy":
	case "":
		return faults.Validation("operation %d: missing op field", index)
	default:
		return faults.Validation("operation %d: unsupported op %q", index, op.Op)
	}

	if op.Path == "" {
		return faults.Validation("operation %d: missing path field", index)
	}
	if !strings.HasPrefix(op.Path, "/") {
		return faults.Validation("operation %d: path %q must start with /", index, op.Path)
	}

	// The version counter is managed by the service, never by patches
	if op.Path == "/version" || strings.HasPrefix(op.Path, "/version/") {
		return faults.Validation("operation %d: the version field cannot be patched", index)
	}
	return nil
}
