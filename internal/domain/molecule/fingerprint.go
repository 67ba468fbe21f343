package molecule

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"

	"github.com/tinylib/msgp/msgp"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Fingerprint is the canonical key of a (sub)graph: 32 lowercase hex
// characters.  Isomorphic colored graphs share a fingerprint.
type Fingerprint string

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Valid reports whether fp has the fingerprint shape.
func (fp Fingerprint) Valid() bool {
	return fingerprintPattern.MatchString(string(fp))
}

// ParseFingerprint validates s as a fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	fp := Fingerprint(s)
	if !fp.Valid() {
		return "", errors.InvalidParam("malformed fingerprint").WithDetailf("fingerprint=%q", s)
	}
	return fp, nil
}

// Signature serializes a canonical labelling as the MessagePack document
//
//	[[[isCore, atomType], ...], [[from, to], ...]]
//
// using the smallest encodings, so the bytes match what archives produced by
// other MessagePack writers were keyed on.
func Signature(colors []Color, edges [][2]int) []byte {
	b := make([]byte, 0, 16*len(colors)+4*len(edges)+8)
	b = msgp.AppendArrayHeader(b, 2)

	b = msgp.AppendArrayHeader(b, uint32(len(colors)))
	for _, c := range colors {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendBool(b, c.IsCore)
		b = msgp.AppendString(b, c.AtomType)
	}

	b = msgp.AppendArrayHeader(b, uint32(len(edges)))
	for _, e := range edges {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendUint(b, uint(e[0]))
		b = msgp.AppendUint(b, uint(e[1]))
	}
	return b
}

// HashSignature returns the fingerprint of a serialized signature.
func HashSignature(sig []byte) Fingerprint {
	sum := md5.Sum(sig)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
