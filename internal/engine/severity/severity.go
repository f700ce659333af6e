// Package severity maps native event levels onto the sink's level vocabulary.
package severity

import (
	"fmt"

	"github.com/crimson-sun/evtship/internal/model"
)

// Canonical level names produced by the fallback table.
const (
	Information = "Information"
	Warning     = "Warning"
	Error       = "Error"
	Fatal       = "Fatal"
)

// fallback is used only when the provider's display name cannot be obtained.
var fallback = map[uint8]string{
	4: Information,
	3: Warning,
	2: Error,
	1: Fatal,
}

// Normalize returns the canonical level for rec. The provider's display
// name wins when obtainable and is returned unmodified; otherwise the
// numeric code is mapped through the fallback table. Codes outside the
// table fail with model.ErrUnmappedSeverity.
func Normalize(rec model.NativeRecord) (string, error) {
	if name, err := rec.LevelDisplayName(); err == nil && name != "" {
		return name, nil
	}
	if name, ok := fallback[rec.Level]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: level %d has no display name", model.ErrUnmappedSeverity, rec.Level)
}
