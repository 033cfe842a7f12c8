// Package kv defines the byte key layout shared by the ordered key-value
// identifier store backends.
package kv

import "bytes"

// Key prefixes. Each prefix ends with '|' as a separator.
const (
	PrefixIdentifier = "i|" // i|{sctid} => encoded record
	PrefixItemIndex  = "x|" // x|{namespace}\x00{partition:1B}{item_id:8BE} => sctid
	PrefixCounter    = "c|" // c|{namespace}\x00{partition:1B} => item_id:8BE
)

const sep = '\x00'

// IdentifierKey returns the key for an identifier record: i|{sctid}
func IdentifierKey(id string) []byte {
	return append([]byte(PrefixIdentifier), id...)
}

// IdentifierPrefix returns the scan prefix for all identifier records.
func IdentifierPrefix() []byte {
	return []byte(PrefixIdentifier)
}

// ItemIndexKey returns the item-id index key. Within one namespace and
// partition, keys sort by item id ascending.
// x|{namespace}\x00{partition:1B}{item_id:8BE}
func ItemIndexKey(namespace string, partition uint8, itemID uint64) []byte {
	k := ItemIndexPrefix(namespace, partition)
	return PutUint64BE(k, itemID)
}

// ItemIndexPrefix returns the scan prefix for one namespace and partition:
// x|{namespace}\x00{partition:1B}
func ItemIndexPrefix(namespace string, partition uint8) []byte {
	k := append([]byte(PrefixItemIndex), namespace...)
	k = append(k, sep)
	return PutUint8(k, partition)
}

// ItemIDFromIndexKey extracts the item id from an item-index key.
func ItemIDFromIndexKey(k []byte) (uint64, bool) {
	if !bytes.HasPrefix(k, []byte(PrefixItemIndex)) || len(k) < len(PrefixItemIndex)+10 {
		return 0, false
	}
	return GetUint64BE(k[len(k)-8:]), true
}

// CounterKey returns the sequential counter key: c|{namespace}\x00{partition:1B}
func CounterKey(namespace string, partition uint8) []byte {
	k := append([]byte(PrefixCounter), namespace...)
	k = append(k, sep)
	return PutUint8(k, partition)
}

// PrefixUpperBound returns the smallest key greater than every key that has
// the given prefix, for use as an exclusive iterator bound.
func PrefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	b := append([]byte(nil), prefix...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return b[:i+1]
		}
	}
	return append(append([]byte(nil), prefix...), bytes.Repeat([]byte{0xFF}, 8)...)
}
