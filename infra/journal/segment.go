package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const segmentGlob = "segment-*.wal"

type segmentFile interface {
	io.WriteCloser
	Truncate(size int64) error
	Sync() error
}

type segment struct {
	file   segmentFile
	index  int
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, index: index, offset: st.Size()}, nil
}

// append writes one frame. A failed write is cut back to the previous
// offset so no partial frame is left ahead of later appends.
func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		if n > 0 {
			if terr := s.file.Truncate(s.offset); terr != nil {
				return errors.CombineErrors(err, errors.Wrap(terr, "truncate partial frame"))
			}
		}
		return err
	}
	s.offset += int64(n)
	return nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// segments lists segment files in index order.
func segments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func segmentIndex(path string) (int, error) {
	var idx int
	_, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx)
	return idx, err
}
