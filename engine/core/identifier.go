package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewName returns a unique, human readable name for debug labels of render
// nodes, command buffer sets and jobs.
func NewName(prefix string) string {
	id := uuid.New()
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String()[:8])
}

