package journal

import (
	"hash/crc32"
	"time"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota + 1
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "PLACE"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

const headerSize = 1 + 8 + 8 + 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}
