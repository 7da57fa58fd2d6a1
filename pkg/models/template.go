package models

import (
	"time"

	"github.com/google/uuid"
)

// InputPlaceholder is the token in a template's user prompt that gets
// replaced with the submitted input at generation time.
const InputPlaceholder = "{{input}}"

// Template is a reusable prompt pair. Version is bumped on every edit and
// participates in the job content hash, so regenerating against a newer
// version never reuses an older version's result.
type Template struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Name         string    `db:"name"          json:"name"`
	SystemPrompt string    `db:"system_prompt" json:"system_prompt"`
	UserPrompt   string    `db:"user_prompt"   json:"user_prompt"`
	Version      int       `db:"version"       json:"version"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
