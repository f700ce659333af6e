package evtxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextFragment(t *testing.T) {
	t.Run("complete element after noise", func(t *testing.T) {
		buf := []byte(`<Events>` + "\n" + `<Event><System><EventID>1</EventID></System></Event><Event>`)
		start, end, ok := NextFragment(buf)
		assert.True(t, ok)
		assert.Equal(t, `<Event><System><EventID>1</EventID></System></Event>`, string(buf[start:end]))
	})

	t.Run("incomplete element", func(t *testing.T) {
		buf := []byte(`<Event xmlns="x"><System><EventID>1</Event`)
		start, _, ok := NextFragment(buf)
		assert.False(t, ok)
		assert.Equal(t, 0, start)
	})

	t.Run("skips look-alike tags", func(t *testing.T) {
		buf := []byte(`<Events><EventData/><Event/>`)
		_, _, ok := NextFragment(buf)
		assert.False(t, ok)
		assert.Equal(t, 20, findEventOpen(buf, 0))
	})

	t.Run("no element", func(t *testing.T) {
		_, _, ok := NextFragment([]byte("garbage"))
		assert.False(t, ok)
	})
}
