package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"matchcore/domain/orderbook"
)

const pattern = "snapshot-*.bin"

func fileName(seq uint64) string {
	return fmt.Sprintf("snapshot-%020d.bin", seq)
}

type Writer struct {
	Dir  string
	Keep int // newest files kept, minimum 1
}

// Write stores st as the state after command seq and prunes old files.
// The file appears atomically.
func (w *Writer) Write(seq uint64, st orderbook.State) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", errors.Wrap(err, "snapshot: mkdir")
	}

	path := filepath.Join(w.Dir, fileName(seq))
	tmp, err := os.CreateTemp(w.Dir, "snapshot-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "snapshot: create")
	}
	defer os.Remove(tmp.Name())

	s := Snapshot{Seq: seq, Created: time.Now(), State: st}
	if err := gob.NewEncoder(tmp).Encode(&s); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "snapshot: encode")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "snapshot: sync")
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, "snapshot: rename")
	}
	return path, w.prune()
}

func (w *Writer) prune() error {
	keep := max(w.Keep, 1)
	files, err := filepath.Glob(filepath.Join(w.Dir, pattern))
	if err != nil {
		return err
	}
	// names sort by seq
	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i]); err != nil {
			return errors.Wrapf(err, "snapshot: prune %s", files[i])
		}
	}
	return nil
}
