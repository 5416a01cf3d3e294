// Package hash defines the content address used for every chunk in TreeDB.
//
// A Hash is the first 20 bytes of the SHA-512 digest of a chunk's bytes. Its
// text form is 32 characters of base32 using the alphabet 0-9a-v, so hashes
// sort the same way as text and as bytes.
package hash

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"fmt"
)

const (
	ByteLen   = 20
	StringLen = 32
)

var encoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

type Hash [ByteLen]byte

// Of computes the hash of data.
func Of(data []byte) Hash {
	sum := sha512.Sum512(data)
	var h Hash
	copy(h[:], sum[:ByteLen])
	return h
}

// New copies b into a Hash. b must be ByteLen long.
func New(b []byte) (Hash, error) {
	var h Hash
	if len(b) != ByteLen {
		return h, fmt.Errorf("hash: invalid length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return encoding.EncodeToString(h[:])
}

// Short returns the first 8 characters of the text form.
func (h Hash) Short() string {
	return h.String()[:8]
}

func (h Hash) IsEmpty() bool {
	return h == Hash{}
}

func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

// Parse decodes the text form of a hash.
func Parse(s string) (Hash, error) {
	h, ok := MaybeParse(s)
	if !ok {
		return Hash{}, fmt.Errorf("hash: cannot parse %q", s)
	}
	return h, nil
}

func MaybeParse(s string) (Hash, bool) {
	var h Hash
	if len(s) != StringLen {
		return h, false
	}
	n, err := encoding.Decode(h[:], []byte(s))
	if err != nil || n != ByteLen {
		return Hash{}, false
	}
	return h, true
}

func (h Hash) MarshalText() ([]byte, error) {
	if h.IsEmpty() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

type HashSet map[Hash]struct{}

func NewHashSet(hashes ...Hash) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s.Insert(h)
	}
	return s
}

func (s HashSet) Insert(h Hash) {
	s[h] = struct{}{}
}

func (s HashSet) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}
