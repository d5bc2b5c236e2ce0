package domain

import (
	"errors"
	"time"
)

// Workspace is the tenant boundary. Every user gets one at registration and
// becomes its owner.
type Workspace struct {
	ID        string
	Name      string
	Industry  string
	CreatedAt time.Time
}

// Validate validates the workspace for persistence.
func (w *Workspace) Validate() error {
	if w.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
