// Package schemadiscovery builds the ordered, deduplicated leaf-type list
// for a document's flattened leaves and computes the content hash that
// identifies its Schema. Schemas are global: two documents with the same
// shape, even in different collections, share one Schema row, mirroring
// the teacher's global (not per-issue) schema-version record in
// internal/storage/convex/schema.go.
package schemadiscovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
)

// Discover reduces a document's flattened leaves to an ordered list of
// SchemaElements: duplicate (path, type) pairs collapse to one entry
// (the common case for arrays), a path seen with both a null and a
// non-null type becomes nullable, and a path seen with two different
// non-null types widens to string and becomes nullable.
func Discover(leaves []jsonflat.Leaf) []model.SchemaElement {
	order := make([]string, 0, len(leaves))
	byPath := make(map[string]*model.SchemaElement, len(leaves))

	for _, leaf := range leaves {
		existing, ok := byPath[leaf.Path]
		if !ok {
			el := model.SchemaElement{
				Key:      leaf.Path,
				DataType: leaf.DataType,
				Nullable: leaf.IsNull,
			}
			byPath[leaf.Path] = &el
			order = append(order, leaf.Path)
			continue
		}
		mergeInto(existing, leaf)
	}

	elements := make([]model.SchemaElement, 0, len(order))
	for _, path := range order {
		elements = append(elements, *byPath[path])
	}
	return elements
}

func mergeInto(existing *model.SchemaElement, leaf jsonflat.Leaf) {
	if leaf.IsNull {
		existing.Nullable = true
		return
	}
	if existing.DataType == model.LeafNull {
		// Every prior sighting of this path was null; adopt this leaf's
		// concrete type and remember it was nullable.
		existing.DataType = leaf.DataType
		existing.Nullable = true
		return
	}
	if existing.DataType != leaf.DataType {
		// Two different non-null types on the same path: widen to
		// string and mark nullable, per the resolved Open Question on
		// type-conflict handling.
		existing.DataType = model.LeafString
		existing.Nullable = true
	}
}

// canonicalForm is the exact shape hashed to identify a schema: a single
// "elements" array of {key, dataType, nullable} objects in discovery
// order, matching the hash definition's requirement for a deterministic,
// order-sensitive encoding.
type canonicalForm struct {
	Elements []canonicalElement `json:"elements"`
}

type canonicalElement struct {
	Key      string `json:"key"`
	DataType string `json:"dataType"`
	Nullable bool   `json:"nullable"`
}

// Hash computes the SHA-256 hex digest of the canonical JSON encoding of
// elements, used as the stable identity for a Schema.
func Hash(elements []model.SchemaElement) (string, error) {
	form := canonicalForm{Elements: make([]canonicalElement, len(elements))}
	for i, el := range elements {
		form.Elements[i] = canonicalElement{
			Key:      el.Key,
			DataType: string(el.DataType),
			Nullable: el.Nullable,
		}
	}

	// encoding/json's struct-field marshaling order is fixed by field
	// declaration order, so this is deterministic without a separate
	// canonicalization pass.
	buf, err := json.Marshal(form)
	if err != nil {
		return "", fmt.Errorf("schemadiscovery: marshal canonical form: %w", err)
	}

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
