package metabox

import (
	"context"
	"errors"
	"fmt"
)

// Gate failure reasons, reported through the debug log only.
const (
	reasonInvalidEntity = "invalid entity id"
	reasonAutosave      = "autosave in progress"
	reasonUnknownEntity = "entity not found"
	reasonForbidden     = "actor lacks edit capability"
	reasonMissingNonce  = "nonce missing"
	reasonInvalidNonce  = "nonce invalid"
)

// checkGate runs the pre-save checks in order: entity id, autosave, edit
// capability, anti-forgery token. It never mutates storage. A non-nil error
// means a collaborator failed, not that a check failed.
func (m *Metabox) checkGate(ctx context.Context, entityID int64, req Request, actor Actor) (bool, string, error) {
	if entityID < 1 {
		return false, reasonInvalidEntity, nil
	}
	if req == nil {
		return false, reasonMissingNonce, nil
	}
	if req.Autosave() {
		return false, reasonAutosave, nil
	}
	if m.host.Store == nil || m.host.Nonces == nil || m.host.Entities == nil {
		return false, "", fmt.Errorf("metabox %q: save requires store, nonces and entity lookup", m.id)
	}

	entity, err := m.host.Entities.Entity(ctx, entityID)
	if errors.Is(err, ErrEntityNotFound) {
		return false, reasonUnknownEntity, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("metabox %q: resolve entity %d: %w", m.id, entityID, err)
	}

	capabilities := m.host.Capabilities
	if capabilities == nil {
		capabilities = CapabilityMap(nil)
	}
	capability, err := capabilities.EditCapability(ctx, entity.Type)
	if err != nil {
		return false, "", fmt.Errorf("metabox %q: resolve capability for %q: %w", m.id, entity.Type, err)
	}
	if actor == nil || capability == "" || !actor.Can(capability, entityID) {
		return false, reasonForbidden, nil
	}

	tokens, ok := req.Values(m.NonceName())
	if !ok || len(tokens) == 0 || tokens[0] == "" {
		return false, reasonMissingNonce, nil
	}
	if !m.host.Nonces.Verify(ctx, tokens[0], NonceAction) {
		return false, reasonInvalidNonce, nil
	}

	return true, "", nil
}
