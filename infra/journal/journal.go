package journal

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEvery fsyncs after every append when true.
	SyncEvery bool
}

// Journal appends records to the newest segment. Single writer.
type Journal struct {
	dir     string
	segSize int64
	sync    bool
	current *segment
}

// Open continues the newest existing segment, or starts segment 0.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal: empty dir")
	}
	if cfg.SegmentSize <= 0 {
		return nil, errors.Newf("journal: segment size %d", cfg.SegmentSize)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "journal: mkdir")
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	index := 0
	if len(files) > 0 {
		newest := files[len(files)-1]
		if index, err = segmentIndex(newest); err != nil {
			return nil, errors.Wrapf(err, "journal: parse %s", newest)
		}
		// drop a torn tail so new records stay readable
		n, err := validLength(newest)
		if err != nil {
			return nil, errors.Wrapf(err, "journal: scan %s", newest)
		}
		if err := os.Truncate(newest, n); err != nil {
			return nil, errors.Wrapf(err, "journal: truncate %s", newest)
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open segment")
	}
	return &Journal{
		dir:     cfg.Dir,
		segSize: cfg.SegmentSize,
		sync:    cfg.SyncEvery,
		current: seg,
	}, nil
}

func encode(r *Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(payloadLen)+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)
	return buf
}

func (j *Journal) Append(r *Record) error {
	if err := j.current.append(encode(r)); err != nil {
		return errors.Wrapf(err, "journal: append seq %d", r.Seq)
	}
	if j.sync {
		if err := j.current.sync(); err != nil {
			return errors.Wrap(err, "journal: sync")
		}
	}
	if j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

func (j *Journal) rotate() error {
	if err := j.current.sync(); err != nil {
		return errors.Wrap(err, "journal: sync before rotate")
	}
	_ = j.current.close()

	seg, err := openSegment(j.dir, j.current.index+1)
	if err != nil {
		return errors.Wrap(err, "journal: rotate")
	}
	j.current = seg
	return nil
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) Sync() error {
	return j.current.sync()
}

func (j *Journal) Close() error {
	if err := j.current.sync(); err != nil {
		_ = j.current.close()
		return err
	}
	return j.current.close()
}

// TruncateBefore removes closed segments whose records all have seq <= seq.
// The segment being written is never removed.
func (j *Journal) TruncateBefore(seq uint64) error {
	files, err := segments(j.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if idx, err := segmentIndex(path); err != nil || idx == j.current.index {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return errors.Wrapf(err, "journal: remove %s", path)
			}
		}
	}
	return nil
}
