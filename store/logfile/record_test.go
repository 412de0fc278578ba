package logfile

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid base64 encoded records: key='Meet' account='1', and a tombstone for key='Mail'.
const (
	validValueBase64     = "6wYk0gAAAAAEAAAAAU1lZXQx"
	validTombstoneBase64 = "X14SYQEAAAAEAAAAAE1haWw"
)

func decodeFixture(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.RawStdEncoding.DecodeString(s)
	require.NoError(t, err, "test setup invalid")
	return b
}

func TestDeserializeRecord(t *testing.T) {
	r, err := deserialize(decodeFixture(t, validValueBase64))
	require.NoError(t, err)

	assert.Equal(t, kindValue, r.kind)
	assert.Equal(t, "Meet", r.key)
	assert.Equal(t, "1", r.account)
	assert.False(t, r.isTombstone())

	r, err = deserialize(decodeFixture(t, validTombstoneBase64))
	require.NoError(t, err)
	assert.True(t, r.isTombstone())
	assert.Equal(t, "Mail", r.key)
	assert.Empty(t, r.account)
}

func TestSerializeRecord(t *testing.T) {
	assert.Equal(t, validValueBase64, base64.RawStdEncoding.EncodeToString(newValue("Meet", "1").serialize()))
	assert.Equal(t, validTombstoneBase64, base64.RawStdEncoding.EncodeToString(newTombstone("Mail").serialize()))
}

func TestDeserializeShortData(t *testing.T) {
	data := decodeFixture(t, validValueBase64)

	_, err := deserialize(data[:headerLength-1])
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = deserialize(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDeserializeCorruptData(t *testing.T) {
	data := decodeFixture(t, validValueBase64)
	data[len(data)-1] = '2'

	_, err := deserialize(data)
	assert.ErrorIs(t, err, ErrCorruptData)
}
