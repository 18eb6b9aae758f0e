// Package jsonflat flattens an arbitrary JSON document into an ordered list
// of (dotted path, leaf type, value) entries, following the traversal and
// naming rules of the ingest pipeline: object keys build dotted paths,
// arrays contribute no path segment of their own (elements share the
// parent path), and traversal order always matches the document's own
// key/element order.
//
// The shape of this walk is grounded on
// internal/storage/sqlite/metadata_index.go's indexFlatKeys, generalized
// from "one level of namespaced nesting" to full recursive flattening.
package jsonflat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/latticedb/lattice/internal/model"
)

// Leaf is one flattened scalar value from a document.
type Leaf struct {
	Path     string
	DataType model.LeafType
	// Encoded is the value in the canonical string encoding described by
	// the ingest rules: lowercase booleans, invariant-culture numbers
	// with '.' as the decimal separator, and a sentinel for null.
	Encoded string
	// IsNull is true when the leaf's JSON value was null.
	IsNull bool
}

// NullSentinel is the encoded value recorded for a null leaf. Index rows
// for null leaves use this sentinel so that IsNull/IsNotNull can be
// answered by row presence rather than row absence, per the resolved
// Open Question on null handling.
const NullSentinel = "\x00NULL\x00"

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func leafFor(path string, v interface{}) Leaf {
	switch val := v.(type) {
	case nil:
		return Leaf{Path: path, DataType: model.LeafNull, Encoded: NullSentinel, IsNull: true}
	case bool:
		if val {
			return Leaf{Path: path, DataType: model.LeafBoolean, Encoded: "true"}
		}
		return Leaf{Path: path, DataType: model.LeafBoolean, Encoded: "false"}
	case json.Number:
		return numberLeaf(path, val)
	case string:
		return Leaf{Path: path, DataType: model.LeafString, Encoded: val}
	default:
		// Unreachable for output of encoding/json with UseNumber, but
		// kept defensive for values assembled directly by callers/tests.
		return Leaf{Path: path, DataType: model.LeafString, Encoded: fmt.Sprintf("%v", val)}
	}
}

func numberLeaf(path string, n json.Number) Leaf {
	s := n.String()
	if isIntegerLiteral(s) {
		return Leaf{Path: path, DataType: model.LeafInteger, Encoded: s}
	}
	f, err := n.Float64()
	if err != nil {
		return Leaf{Path: path, DataType: model.LeafNumber, Encoded: s}
	}
	return Leaf{Path: path, DataType: model.LeafNumber, Encoded: formatNumber(f)}
}

// isIntegerLiteral reports whether s, a valid JSON number literal, has no
// fractional part and no exponent, per spec's integer/number distinction.
func isIntegerLiteral(s string) bool {
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FlattenOrdered is the package's entry point: it decodes raw JSON
// preserving object key order by walking the token stream directly,
// rather than through an unordered map[string]interface{}.
func FlattenOrdered(raw []byte) ([]Leaf, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("jsonflat: decode: %w", err)
	}

	var leaves []Leaf
	if err := walkToken(dec, tok, "", &leaves); err != nil {
		return nil, fmt.Errorf("jsonflat: decode: %w", err)
	}
	return leaves, nil
}

func walkToken(dec *json.Decoder, tok json.Token, path string, out *[]Leaf) error {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := keyTok.(string)
				valTok, err := dec.Token()
				if err != nil {
					return err
				}
				if err := walkToken(dec, valTok, joinPath(path, key), out); err != nil {
					return err
				}
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return err
			}
		case '[':
			for dec.More() {
				valTok, err := dec.Token()
				if err != nil {
					return err
				}
				if err := walkToken(dec, valTok, path, out); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
	default:
		*out = append(*out, leafFor(path, tok))
	}
	return nil
}
