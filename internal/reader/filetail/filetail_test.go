package filetail

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/evtship/internal/evtxml/evtxmltest"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func xmlOf(events []evtxmltest.Event) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.XML())
		b.WriteString("\n")
	}
	return b.String()
}

func next(t *testing.T, r *Reader) model.NativeRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := r.Next(ctx)
	require.NoError(t, err)
	return rec
}

func TestReader_ResumesAfterBookmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.xml")
	appendFile(t, path, xmlOf(evtxmltest.Sequence("App", 1, 4)))

	r, err := Open(path, reader.OpenOptions{After: 2})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint64(3), next(t, r).RecordID)
	assert.Equal(t, uint64(4), next(t, r).RecordID)
}

func TestReader_FollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.xml")
	appendFile(t, path, xmlOf(evtxmltest.Sequence("App", 1, 1)))

	r, err := Open(path, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint64(1), next(t, r).RecordID)

	more := xmlOf(evtxmltest.Sequence("App", 2, 1))
	half := len(more) / 2
	go func() {
		time.Sleep(50 * time.Millisecond)
		appendFile(t, path, more[:half])
		time.Sleep(50 * time.Millisecond)
		appendFile(t, path, more[half:])
	}()

	rec := next(t, r)
	assert.Equal(t, uint64(2), rec.RecordID)
	assert.Equal(t, "The service entered state 2.", rec.Rendering.Message)
}

func TestReader_WaitsForFileCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.xml")

	r, err := Open(path, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		appendFile(t, path, xmlOf(evtxmltest.Sequence("App", 10, 1)))
	}()

	assert.Equal(t, uint64(10), next(t, r).RecordID)
}

func TestReader_SkipsMalformedFragment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.xml")
	good := xmlOf(evtxmltest.Sequence("App", 5, 1))
	appendFile(t, path, "<Event><System><EventID>x</Bad></Event>\n"+good)

	r, err := Open(path, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint64(5), next(t, r).RecordID)
}

func TestReader_BufferStaysBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.xml")
	const total = 5000
	appendFile(t, path, xmlOf(evtxmltest.Sequence("App", 1, total)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(20*readChunk))

	r, err := Open(path, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	for want := uint64(1); want <= total; want++ {
		require.Equal(t, want, next(t, r).RecordID)
		require.LessOrEqual(t, len(r.buf), 2*readChunk, "record %d", want)
		require.LessOrEqual(t, r.pos, len(r.buf))
	}
}

func TestReader_CancelUnblocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idle.xml")
	appendFile(t, path, "")

	r, err := Open(path, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "no", "such", "dir.xml"), reader.OpenOptions{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestOpen_ViaRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.xml")
	appendFile(t, path, xmlOf(evtxmltest.Sequence("App", 1, 1)))

	src := model.LogSource{Name: "app", Handle: "file:" + path, Kind: model.Live}
	r, err := reader.Open(context.Background(), src, reader.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.RecordID)
}
