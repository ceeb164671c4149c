package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// LoadLatest reads the newest snapshot in dir. found is false when there is
// none.
func LoadLatest(dir string) (s Snapshot, found bool, err error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(files) == 0 {
		return Snapshot{}, false, err
	}
	path := files[len(files)-1]

	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "snapshot: open")
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "snapshot: decode %s", path)
	}
	return s, true, nil
}
