package logfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

const (
	kindValue byte = iota
	kindTombstone
)

// ErrInsufficientData is returned when the given data is not enough to be
// parsed into a record
var ErrInsufficientData = errors.New("insufficient bytes to parse a record")

// ErrCorruptData is returned when the crc checksum is not matching the provided serialized data
var ErrCorruptData = errors.New("crc checksum doesnt match the provided record data")

// record is one entry of the log: either an account set for a service key,
// or a tombstone clearing it.
//
// A record is serialized to a sequence of bytes in the following format
//
//	[checksum]: 4 bytes, CRC32 (IEEE) over everything after it
//	[kind]:     1 byte
//	[keyLen]:   4 bytes
//	[valLen]:   4 bytes
//	[key]:      keyLen bytes
//	[value]:    valLen bytes
type record struct {
	kind    byte
	key     string
	account string
}

const (
	checksumSize = 4
	kindSize     = 1
	keyLenSize   = 4
	valLenSize   = 4
	headerLength = checksumSize + kindSize + keyLenSize + valLenSize

	kindOffset = checksumSize
)

func newValue(key, account string) *record {
	return &record{kind: kindValue, key: key, account: account}
}

func newTombstone(key string) *record {
	return &record{kind: kindTombstone, key: key}
}

func (r *record) isTombstone() bool {
	return r.kind == kindTombstone
}

// size is the length of the serialized record.
func (r *record) size() int {
	return headerLength + len(r.key) + len(r.account)
}

func (r *record) serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, r.size()))

	// Placeholder for the checksum, filled in below.
	buf.Write(make([]byte, checksumSize))
	buf.WriteByte(r.kind)

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(r.key)))
	buf.Write(lenBuf)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(r.account)))
	buf.Write(lenBuf)

	buf.WriteString(r.key)
	buf.WriteString(r.account)

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out, crc32.ChecksumIEEE(out[kindOffset:]))
	return out
}

func (r *record) writeTo(w io.Writer) (int, error) {
	return w.Write(r.serialize())
}

// deserialize parses the record at the start of data. Trailing bytes are ignored.
func deserialize(data []byte) (*record, error) {
	if len(data) < headerLength {
		return nil, ErrInsufficientData
	}

	checksum := binary.BigEndian.Uint32(data[:checksumSize])
	kind := data[kindOffset]
	keyLength := uint64(binary.BigEndian.Uint32(data[kindOffset+kindSize:]))
	valLength := uint64(binary.BigEndian.Uint32(data[kindOffset+kindSize+keyLenSize:]))

	end := uint64(headerLength) + keyLength + valLength
	if uint64(len(data)) < end {
		return nil, ErrInsufficientData
	}

	if crc32.ChecksumIEEE(data[kindOffset:end]) != checksum {
		return nil, ErrCorruptData
	}

	keyEnd := uint64(headerLength) + keyLength
	return &record{
		kind:    kind,
		key:     string(data[headerLength:keyEnd]),
		account: string(data[keyEnd:end]),
	}, nil
}
