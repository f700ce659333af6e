//go:build windows

package archive

import (
	"log/slog"

	"github.com/crimson-sun/evtship/internal/reader"
	"github.com/crimson-sun/evtship/internal/reader/wineventlog"
)

// openEVTX queries the file through wevtapi so messages are formatted with
// the local publisher metadata.
func openEVTX(path string, log *slog.Logger) (reader.Reader, error) {
	r, err := wineventlog.OpenFile(path, log)
	if err != nil {
		return nil, err
	}
	return r, nil
}
