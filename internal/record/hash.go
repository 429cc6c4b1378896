package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hash domains. The version suffix leaves room to change the encoding.
const (
	DomainKey = "restup/key/v1"
)

// KeyHash is the hex digest of a row's key column values.
type KeyHash string

// nullMarker stands in for a nil key value. Length-prefixed values always
// start with a digit, so the marker cannot collide with them.
const nullMarker = "~"

// HashKey computes the key hash of row over columns. The second result is
// false when columns is empty or any column is absent from the row.
//
// Format: SHA256(domain + 0x00 + len(v1) ":" v1 ";" len(v2) ":" v2 ";" ...)
func HashKey(row Row, columns []string) (KeyHash, bool) {
	if !row.HasAll(columns) {
		return "", false
	}

	h := sha256.New()
	h.Write([]byte(DomainKey))
	h.Write([]byte{0x00})

	for _, c := range columns {
		s, ok := KeyString(row[c])
		if !ok {
			h.Write([]byte(nullMarker))
		} else {
			h.Write([]byte(strconv.Itoa(len(s))))
			h.Write([]byte{':'})
			h.Write([]byte(s))
		}
		h.Write([]byte{';'})
	}

	return KeyHash(hex.EncodeToString(h.Sum(nil))), true
}

// SameKey reports whether both rows carry every column and agree on them.
func SameKey(a, b Row, columns []string) bool {
	ha, ok := HashKey(a, columns)
	if !ok {
		return false
	}
	hb, ok := HashKey(b, columns)
	return ok && ha == hb
}
