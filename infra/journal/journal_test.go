package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 64 << 20})
	require.NoError(t, err)

	const n = 100
	for i := 1; i <= n; i++ {
		require.NoError(t, j.Append(NewRecord(RecordPlace, uint64(i), []byte(fmt.Sprintf("order-%d", i)))))
	}
	require.NoError(t, j.Close())

	var got []string
	last, err := Replay(dir, func(r *Record) error {
		assert.Equal(t, RecordPlace, r.Type)
		got = append(got, string(r.Data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(n), last)
	require.Len(t, got, n)
	assert.Equal(t, "order-1", got[0])
	assert.Equal(t, "order-100", got[n-1])
}

func TestRotationAndReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 64})
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		require.NoError(t, j.Append(NewRecord(RecordPlace, uint64(i), []byte("0123456789"))))
	}
	require.NoError(t, j.Close())

	files, err := segments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "small segment size must rotate")

	// reopening continues after the last record
	j, err = Open(Config{Dir: dir, SegmentSize: 64})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 11, []byte("x"))))
	require.NoError(t, j.Close())

	count := 0
	last, err := Replay(dir, func(*Record) error { count++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 11, count)
	assert.Equal(t, uint64(11), last)
}

func TestReplayRejectsNonMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 5, nil)))
	require.NoError(t, j.Append(NewRecord(RecordPlace, 5, nil)))
	require.NoError(t, j.Close())

	_, err = Replay(dir, func(*Record) error { return nil })
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReplayDetectsCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 1, []byte("payload"))))
	require.NoError(t, j.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Replay(dir, func(*Record) error { return nil })
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 1, []byte("a"))))
	require.NoError(t, j.Append(NewRecord(RecordPlace, 2, []byte("b"))))
	require.NoError(t, j.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-3], 0o644))

	last, err := Replay(dir, func(*Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

func TestOpenDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 1, []byte("a"))))
	require.NoError(t, j.Append(NewRecord(RecordPlace, 2, []byte("b"))))
	require.NoError(t, j.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-3], 0o644))

	j, err = Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, j.Append(NewRecord(RecordPlace, 2, []byte("b2"))))
	require.NoError(t, j.Close())

	var got []string
	last, err := Replay(dir, func(r *Record) error { got = append(got, string(r.Data)); return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
	assert.Equal(t, []string{"a", "b2"}, got)
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 40})
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		require.NoError(t, j.Append(NewRecord(RecordPlace, uint64(i), []byte("abcdefghij"))))
	}

	// 35-byte frames: two per segment, so seqs 1-2 and 3-4 sit in closed segments
	require.NoError(t, j.TruncateBefore(4))

	var seqs []uint64
	_, err = Replay(dir, func(r *Record) error { seqs = append(seqs, r.Seq); return nil })
	require.NoError(t, err)
	require.NotEmpty(t, seqs)
	assert.Equal(t, []uint64{5, 6}, seqs)
	require.NoError(t, j.Close())

	_, err = os.Stat(filepath.Join(dir, "segment-000000.wal"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
	_, err = Open(Config{Dir: t.TempDir()})
	assert.Error(t, err)
}

type shortWriter struct {
	segmentFile
}

func (w shortWriter) Write(b []byte) (int, error) {
	n, _ := w.segmentFile.Write(b[:len(b)/2])
	return n, errors.New("disk full")
}

func TestAppendFailureLeavesNoPartialFrame(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, SegmentSize: 64 << 20})
	require.NoError(t, err)

	require.NoError(t, j.Append(NewRecord(RecordPlace, 1, []byte("order-1"))))
	before := j.current.offset

	f := j.current.file
	j.current.file = shortWriter{f}
	require.Error(t, j.Append(NewRecord(RecordPlace, 2, []byte("order-2"))))
	assert.Equal(t, before, j.current.offset)

	j.current.file = f
	require.NoError(t, j.Append(NewRecord(RecordPlace, 2, []byte("order-2"))))
	require.NoError(t, j.Close())

	var seqs []uint64
	last, err := Replay(dir, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
	assert.Equal(t, []uint64{1, 2}, seqs)
}
