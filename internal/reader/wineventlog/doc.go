// Package wineventlog subscribes to a live Windows event log channel
// through wevtapi.dll. It registers the "wineventlog" reader scheme on
// Windows only; elsewhere opening a channel fails with model.ErrInvalidInput.
package wineventlog
