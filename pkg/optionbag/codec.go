package optionbag

import (
	"math"

	"github.com/fxamacker/cbor/v2"
)

// encMode mirrors pkg/log's canonical CBOR settings so option-bag
// snapshots are deterministic byte-for-byte, which is what lets
// retrieve_options/set_option round-trip cleanly (spec.md §8).
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	opts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = m

	dopts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	dm, err := dopts.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Encode serializes a Bag to canonical CBOR bytes.
func Encode(b *Bag) ([]byte, error) {
	return encMode.Marshal(b)
}

// Decode deserializes canonical CBOR bytes into a Bag. CBOR keeps no
// integer width, so a leaf that decodes as uint64 and fits in 32 bits is
// restored as uint32, the type the option setters record.
func Decode(data []byte) (*Bag, error) {
	var b Bag
	if err := decMode.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	narrowLeaves(&b)
	return &b, nil
}

func narrowLeaves(b *Bag) {
	for name, v := range b.Leaves {
		if u, ok := v.(uint64); ok && u <= math.MaxUint32 {
			b.Leaves[name] = uint32(u)
		}
	}
	for _, child := range b.Children {
		if child != nil {
			narrowLeaves(child)
		}
	}
}
