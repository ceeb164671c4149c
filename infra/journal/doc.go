// Package journal is an append-only, segmented command log.
//
// Each frame is [type:1][seq:8][time:8][len:4][payload][crc:4], big endian,
// with the CRC covering header and payload. Sequence numbers must be
// strictly increasing across the whole journal; Replay enforces it.
package journal
