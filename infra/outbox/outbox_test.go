package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func collect(t *testing.T, scan func(func(Entry) error) error) []Entry {
	t.Helper()
	var out []Entry
	require.NoError(t, scan(func(e Entry) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestPutNewAndGet(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutNew(7, [][]byte{[]byte("a"), []byte("b")}))

	e, err := o.Get(7, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), e.Seq)
	assert.Equal(t, 1, e.Index)
	assert.Equal(t, StateNew, e.State)
	assert.Equal(t, []byte("b"), e.Payload)

	_, err = o.Get(7, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanKeyOrder(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutNew(10, [][]byte{[]byte("x")}))
	require.NoError(t, o.PutNew(2, [][]byte{[]byte("p"), []byte("q")}))
	require.NoError(t, o.PutNew(9, nil))

	got := collect(t, o.Scan)
	require.Len(t, got, 3)
	assert.Equal(t, "p", string(got[0].Payload))
	assert.Equal(t, "q", string(got[1].Payload))
	assert.Equal(t, "x", string(got[2].Payload))
}

func TestScanOrderBeyondFourDigitIndex(t *testing.T) {
	o := openTest(t)
	const n = 10001
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = []byte{byte(i)}
	}
	require.NoError(t, o.PutNew(7, payloads))

	got := collect(t, o.Scan)
	require.Len(t, got, n)
	for i, e := range got {
		require.Equal(t, i, e.Index, "scan position %d", i)
		require.Equal(t, uint64(7), e.Seq)
	}

	e, err := o.Get(7, 10000)
	require.NoError(t, err)
	require.NoError(t, o.MarkAcked(e))
	e, err = o.Get(7, 10000)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, e.State)
	e, err = o.Get(7, 1000)
	require.NoError(t, err)
	assert.Equal(t, StateNew, e.State)
}

func TestStateTransitions(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutNew(1, [][]byte{[]byte("a"), []byte("b"), []byte("c")}))

	a, _ := o.Get(1, 0)
	b, _ := o.Get(1, 1)
	c, _ := o.Get(1, 2)

	require.NoError(t, o.MarkSent(a))
	require.NoError(t, o.MarkAcked(a))
	require.NoError(t, o.MarkRetry(b))
	require.NoError(t, o.MarkFailed(c))

	a, _ = o.Get(1, 0)
	b, _ = o.Get(1, 1)
	c, _ = o.Get(1, 2)
	assert.Equal(t, StateAcked, a.State)
	assert.Equal(t, StateNew, b.State)
	assert.Equal(t, uint32(1), b.Retries)
	assert.NotZero(t, b.LastAttempt)
	assert.Equal(t, "b", string(b.Payload))
	assert.Equal(t, StateFailed, c.State)

	pending := collect(t, o.ScanPending)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Index)

	failed := collect(t, func(fn func(Entry) error) error { return o.ScanByState(StateFailed, fn) })
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Index)
}

func TestDeleteAcked(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutNew(1, [][]byte{[]byte("a"), []byte("b")}))
	a, _ := o.Get(1, 0)
	require.NoError(t, o.MarkAcked(a))

	n, err := o.DeleteAcked()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := collect(t, o.Scan)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)

	n, err = o.DeleteAcked()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLastSeqSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(Config{Dir: dir})
	require.NoError(t, err)

	seq, err := o.LastSeq()
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, o.PutNew(3, [][]byte{[]byte("a")}))
	require.NoError(t, o.PutNew(12, [][]byte{[]byte("b"), []byte("c")}))
	require.NoError(t, o.Close())

	o, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer o.Close()

	seq, err = o.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq)
}

func TestInMemory(t *testing.T) {
	o, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.PutNew(1, [][]byte{[]byte("a")}))
	assert.Len(t, collect(t, o.ScanPending), 1)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
