package journal

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// maxSeqInSegment returns the highest seq in a segment without decoding
// payloads. Used only for truncation.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var top uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return top, nil
			}
			return top, err
		}

		if seq := binary.BigEndian.Uint64(header[1:9]); seq > top {
			top = seq
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return top, err
		}
	}
}

// validLength returns the byte length of the complete, checksummed records
// at the start of a segment.
func validLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var n int64
	for {
		rec, err := readRecord(r)
		if err != nil {
			return n, nil
		}
		n += int64(headerSize + len(rec.Data) + 4)
	}
}
