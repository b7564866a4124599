package sluice

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// genID returns a 32-hex-digit request identifier. Should the entropy
// source ever fail, the clock fills in so IDs stay usable for correlation.
func genID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := uint64(time.Now().UnixNano())
		binary.BigEndian.PutUint64(b[:8], now)
		binary.BigEndian.PutUint64(b[8:], ^now)
	}
	return hex.EncodeToString(b[:])
}
