package reader

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/evtship/internal/model"
)

type sliceReader struct {
	recs   []model.NativeRecord
	closed bool
}

func (s *sliceReader) Next(context.Context) (model.NativeRecord, error) {
	if len(s.recs) == 0 {
		return model.NativeRecord{}, io.EOF
	}
	rec := s.recs[0]
	s.recs = s.recs[1:]
	return rec, nil
}

func (s *sliceReader) Close() error {
	s.closed = true
	return nil
}

func TestSplit(t *testing.T) {
	Register("memtest", func(context.Context, string, OpenOptions) (Reader, error) {
		return &sliceReader{}, nil
	})

	tests := []struct {
		name   string
		src    model.LogSource
		scheme string
		target string
	}{
		{"archive path", model.LogSource{Handle: "C:/logs/System.xml", Kind: model.Archive}, SchemeArchive, "C:/logs/System.xml"},
		{"bare channel", model.LogSource{Handle: "Application", Kind: model.Live}, SchemeWinEventLog, "Application"},
		{"explicit channel", model.LogSource{Handle: "wineventlog:Security", Kind: model.Live}, SchemeWinEventLog, "Security"},
		{"channel with slash", model.LogSource{Handle: "Microsoft-Windows-Sysmon/Operational", Kind: model.Live}, SchemeWinEventLog, "Microsoft-Windows-Sysmon/Operational"},
		{"registered scheme", model.LogSource{Handle: "memtest:abc", Kind: model.Live}, "memtest", "abc"},
		{"unknown prefix", model.LogSource{Handle: "weird:thing", Kind: model.Live}, SchemeWinEventLog, "weird:thing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme, target := Split(tt.src)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestOpen_PassesTargetAndOptions(t *testing.T) {
	var gotTarget string
	var gotAfter uint64
	Register("captest", func(_ context.Context, target string, opts OpenOptions) (Reader, error) {
		gotTarget = target
		gotAfter = opts.After
		return &sliceReader{recs: []model.NativeRecord{{RecordID: 8}}}, nil
	})

	r, err := Open(context.Background(), model.LogSource{Name: "c", Handle: "captest:/tmp/x", Kind: model.Live}, OpenOptions{After: 7})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", gotTarget)
	assert.Equal(t, uint64(7), gotAfter)

	rec, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), rec.RecordID)
	assert.Contains(t, Schemes(), "captest")
}

func TestOpen_UnknownScheme(t *testing.T) {
	_, err := Get("nope")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	Register("emptytest", func(context.Context, string, OpenOptions) (Reader, error) {
		return &sliceReader{}, nil
	})
	_, err = Open(context.Background(), model.LogSource{Name: "e", Handle: "emptytest:", Kind: model.Live}, OpenOptions{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestOptionsLog_DefaultsToDiscard(t *testing.T) {
	assert.NotNil(t, OpenOptions{}.Log())
}
