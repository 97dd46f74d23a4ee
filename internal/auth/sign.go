package auth

import (
	"crypto/ed25519"
	"strconv"
)

// signingMessage is the exact byte sequence covered by a request signature:
// the ASCII decimal timestamp followed by the raw body.
func signingMessage(timestamp int64, body []byte) []byte {
	ts := strconv.AppendInt(nil, timestamp, 10)
	return append(ts, body...)
}

// Sign produces a signature over (timestamp, body). Identical inputs and key
// always yield identical signatures; any change to either input changes the
// signature.
func Sign(timestamp int64, body []byte, key PrivateKey) []byte {
	return ed25519.Sign(key, signingMessage(timestamp, body))
}

// Verify reports whether sig is a valid signature over (timestamp, body) for
// the holder of key.
func Verify(timestamp int64, body, sig []byte, key PublicKey) bool {
	return ed25519.Verify(key, signingMessage(timestamp, body), sig)
}
