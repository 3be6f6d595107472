package util

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"
)

// GenerateID produces a collision-resistant identifier by hashing the current
// time together with random bytes. Used for participant ids; session ids use
// UUIDs.
func GenerateID() string {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	if _, err := io.ReadFull(rand.Reader, buf[8:]); err != nil {
		panic("util: system entropy unavailable: " + err.Error())
	}
	sum := sha1.Sum(buf[:])
	return hex.EncodeToString(sum[:])
}
