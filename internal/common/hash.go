package common

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Sha1Hex returns the SHA-1 digest of the input encoded as lowercase hex.
// PAYONE return-flow hashes are specified as SHA-1 over the order secret;
// the digest is used as an opaque token, not for collision resistance.
func Sha1Hex(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Md5Hex returns the MD5 digest of the input encoded as lowercase hex.
// The gateway's request dialect mandates MD5 for the portal key digest and
// the card-check checksum.
func Md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
