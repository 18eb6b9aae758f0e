// Package ids generates the opaque, prefixed identifiers used throughout
// Lattice for collections, documents, schemas, constraints, indexed fields,
// and dynamic index tables.
package ids

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// Prefix identifies the entity kind an ID belongs to.
type Prefix string

const (
	PrefixCollection   Prefix = "col"
	PrefixDocument     Prefix = "doc"
	PrefixSchema       Prefix = "sch"
	PrefixConstraint   Prefix = "fc"
	PrefixIndexedField Prefix = "if"
	PrefixIndexTable   Prefix = "idx"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a new opaque identifier of the form "<prefix>_<random>",
// e.g. "doc_5hjq7z3k2n8f6m1p". The random suffix carries 128 bits of
// entropy, encoded as lowercase base32.
func New(p Prefix) string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which this process cannot recover from.
		panic(fmt.Sprintf("ids: failed to read random bytes: %v", err))
	}
	return string(p) + "_" + strings.ToLower(b32.EncodeToString(buf[:]))
}

// HasPrefix reports whether id was generated with the given prefix.
func HasPrefix(id string, p Prefix) bool {
	return strings.HasPrefix(id, string(p)+"_")
}

// Valid reports whether id is a syntactically well-formed Lattice
// identifier with one of the known prefixes.
func Valid(id string) bool {
	for _, p := range []Prefix{PrefixCollection, PrefixDocument, PrefixSchema, PrefixConstraint, PrefixIndexedField, PrefixIndexTable} {
		if HasPrefix(id, p) {
			return len(id) > len(p)+1
		}
	}
	return false
}
