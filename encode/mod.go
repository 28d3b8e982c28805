// Package encode pins the canonical serialization used for every commitment
// in the protocol. It is a thin wrapper around the deterministic CBOR mode of
// github.com/fxamacker/cbor so that the same value always serializes to the
// same bytes, no matter where in the module it is encoded. Commitment
// identifiers are domain-separated SHA-256 digests of that encoding.
package encode

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// Digest is a 256-bit commitment to a canonically encoded value.
type Digest [32]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])[:8]
}

// Hex returns the full hexadecimal form of the digest.
func (d Digest) Hex() string {
	return fmt.Sprintf("%x", d[:])
}

var encMode = makeEncMode()

// Core Deterministic Encoding, RFC 8949 4.2.1. The options are fixed once for
// the whole module so that commitment ids are stable across packages.
func makeEncMode() cbor.EncMode {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: invalid deterministic options: " + err.Error())
	}

	return enc
}

// Marshal returns the canonical encoding of the value.
func Marshal(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode value: %v", err)
	}

	return data, nil
}

// Unmarshal populates the value from its canonical encoding.
func Unmarshal(data []byte, v interface{}) error {
	err := cbor.Unmarshal(data, v)
	if err != nil {
		return xerrors.Errorf("couldn't decode value: %v", err)
	}

	return nil
}

// DigestBytes commits to raw bytes under the given domain tag.
func DigestBytes(tag string, data []byte) Digest {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write(data)

	digest := Digest{}
	copy(digest[:], h.Sum(nil))

	return digest
}

// DigestValue commits to a value by hashing its canonical encoding under the
// given domain tag. Encoding the value before hashing prevents field-offset
// collisions between structs that would otherwise concatenate to the same
// bytes.
func DigestValue(tag string, v interface{}) (Digest, error) {
	data, err := Marshal(v)
	if err != nil {
		return Digest{}, xerrors.Errorf("digest of %q: %v", tag, err)
	}

	return DigestBytes(tag, data), nil
}

// DigestSet commits to a set of digests independently of the order in which
// the members were collected. Members are sorted bytewise into a canonical
// sequence before hashing.
func DigestSet(tag string, members []Digest) Digest {
	sorted := make([]Digest, len(members))
	copy(sorted, members)

	sortDigests(sorted)

	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	for _, m := range sorted {
		h.Write(m[:])
	}

	digest := Digest{}
	copy(digest[:], h.Sum(nil))

	return digest
}

func sortDigests(ds []Digest) {
	// Insertion sort keeps the helper free of an interface shim; set sizes
	// are bounded by the consignment confinement limits.
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && lessDigest(ds[j], ds[j-1]); j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

func lessDigest(a, b Digest) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}
