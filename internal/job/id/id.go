// Package id provides unique identifier generation for render jobs.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every job ID.
const Prefix = "render-"

// Generate creates a new unique job ID.
// Format: render-<timestamp>-<random>
// Example: render-1701432000-a1b2c3d4
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d-%s", Prefix, time.Now().Unix(), random[:8])
}
