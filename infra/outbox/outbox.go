// Package outbox stores outbound trade events in pebble until a publisher
// acknowledges them.
package outbox

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed // gave up
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Pending reports whether an entry still needs publishing.
func (s State) Pending() bool {
	return s == StateNew || s == StateSent
}

// -------------------- Entry --------------------

type Entry struct {
	Seq         uint64
	Index       int
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value layout: [state:1][retries:4][lastAttempt:8][payload]
const metaSize = 1 + 4 + 8

func encodeValue(e Entry) []byte {
	buf := make([]byte, metaSize+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[metaSize:], e.Payload)
	return buf
}

func decodeValue(b []byte, e *Entry) error {
	if len(b) < metaSize {
		return errors.Newf("outbox: value length %d", len(b))
	}
	e.State = State(b[0])
	e.Retries = binary.BigEndian.Uint32(b[1:5])
	e.LastAttempt = int64(binary.BigEndian.Uint64(b[5:13]))
	e.Payload = append([]byte(nil), b[metaSize:]...)
	return nil
}

// -------------------- Keys --------------------

const keyPrefix = "trade/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte("trade0") // '0' follows '/'
)

func keyFor(seq uint64, index int) []byte {
	return []byte(fmt.Sprintf("%s%020d-%010d", keyPrefix, seq, index))
}

func parseKey(b []byte) (seq uint64, index int, err error) {
	_, err = fmt.Sscanf(string(b), keyPrefix+"%020d-%010d", &seq, &index)
	return seq, index, err
}

// -------------------- Outbox --------------------

var ErrNotFound = errors.New("outbox: entry not found")

type Config struct {
	Dir string
	// InMemory keeps everything in a memory filesystem; Dir is ignored.
	InMemory bool
}

type Outbox struct {
	db *pebble.DB
}

func Open(cfg Config) (*Outbox, error) {
	opts := &pebble.Options{}
	dir := cfg.Dir
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, errors.New("outbox: empty dir")
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "outbox: open pebble")
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew stores one command's events atomically, in order, as NEW.
func (o *Outbox) PutNew(seq uint64, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	b := o.db.NewBatch()
	defer b.Close()
	for i, p := range payloads {
		if err := b.Set(keyFor(seq, i), encodeValue(Entry{State: StateNew, Payload: p}), nil); err != nil {
			return errors.Wrapf(err, "outbox: stage %d/%d", seq, i)
		}
	}
	return errors.Wrapf(b.Commit(pebble.Sync), "outbox: commit seq %d", seq)
}

func (o *Outbox) Get(seq uint64, index int) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq, index))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "%d/%d", seq, index)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	e := Entry{Seq: seq, Index: index}
	if err := decodeValue(val, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// update rewrites state and retries, keeping the payload.
func (o *Outbox) update(seq uint64, index int, state State, retries uint32) error {
	e, err := o.Get(seq, index)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq, index), encodeValue(e), pebble.Sync)
}

func (o *Outbox) MarkSent(e Entry) error {
	return o.update(e.Seq, e.Index, StateSent, e.Retries)
}

func (o *Outbox) MarkAcked(e Entry) error {
	return o.update(e.Seq, e.Index, StateAcked, e.Retries)
}

// MarkRetry puts the entry back to NEW with one more retry counted.
func (o *Outbox) MarkRetry(e Entry) error {
	return o.update(e.Seq, e.Index, StateNew, e.Retries+1)
}

func (o *Outbox) MarkFailed(e Entry) error {
	return o.update(e.Seq, e.Index, StateFailed, e.Retries)
}

// -------------------- Scan --------------------

// Scan visits every entry in key order until fn returns an error.
func (o *Outbox) Scan(fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, index, err := parseKey(iter.Key())
		if err != nil {
			return errors.Wrapf(err, "outbox: key %q", iter.Key())
		}
		e := Entry{Seq: seq, Index: index}
		if err := decodeValue(iter.Value(), &e); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) ScanByState(state State, fn func(Entry) error) error {
	return o.Scan(func(e Entry) error {
		if e.State != state {
			return nil
		}
		return fn(e)
	})
}

// ScanPending visits NEW and SENT entries in key order.
func (o *Outbox) ScanPending(fn func(Entry) error) error {
	return o.Scan(func(e Entry) error {
		if !e.State.Pending() {
			return nil
		}
		return fn(e)
	})
}

// LastSeq returns the highest command seq stored, or 0.
func (o *Outbox) LastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	seq, _, err := parseKey(iter.Key())
	return seq, err
}

// DeleteAcked removes all ACKED entries and returns how many.
func (o *Outbox) DeleteAcked() (int, error) {
	var keys [][]byte
	err := o.ScanByState(StateAcked, func(e Entry) error {
		keys = append(keys, keyFor(e.Seq, e.Index))
		return nil
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	b := o.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(keys), nil
}
