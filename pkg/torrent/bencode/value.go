// Package bencode implements the bencode encoding used by BitTorrent
// metainfo files, tracker responses and extension messages. Values are
// decoded into a closed set of types (String, Int, List and Dict) and
// encoded back in canonical form with dictionary keys sorted.
package bencode

import (
	"bytes"
	"fmt"
)

// Value is a decoded bencode value. The concrete type is always one of
// String, Int, List or Dict.
type Value interface {
	isValue()
}

// String is a bencode byte string. It is not guaranteed to be UTF-8.
type String []byte

// Int is a bencode integer.
type Int int64

// List is an ordered bencode list.
type List []Value

// Dict is a bencode dictionary. Keys are raw byte strings stored in Go
// strings, so arbitrary bytes are allowed.
type Dict map[string]Value

func (String) isValue() {}
func (Int) isValue()    {}
func (List) isValue()   {}
func (Dict) isValue()   {}

// Str is a convenience constructor for String.
func Str(s string) String {
	return String(s)
}

// Get returns the value stored under key and whether it was present.
func (d Dict) Get(key string) (Value, bool) {
	v, ok := d[key]
	return v, ok
}

// Equal reports whether a and b hold the same bencode value. Nil and
// empty byte strings compare equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && bytes.Equal(av, bv)
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}

		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}

		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}

		return true
	default:
		return a == nil && b == nil
	}
}

// TypeName returns a short human readable name of v's kind, used in
// error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case String:
		return "string"
	case Int:
		return "integer"
	case List:
		return "list"
	case Dict:
		return "dict"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Native converts v into plain Go values (string, int64, []any,
// map[string]any) suitable for encoding/json or fmt output. Byte strings
// become Go strings verbatim.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case List:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Native(item)
		}

		return out
	case Dict:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Native(item)
		}

		return out
	default:
		return nil
	}
}
