// Package doctor holds the engine's read-only view of a doctor: identity
// and active flag (spec §3 — "engine only reads (id, isActive)"). Lifecycle
// management lives in an external collaborator; grounded on the id+flags
// shape of internal/auth/service.go's User.
package doctor

import "github.com/google/uuid"

type Doctor struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}
