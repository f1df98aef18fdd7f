package torrentinfo

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/anacrolix/torrent/bencode"
)

// Kind is the type tag of a decoded bencode node.
type Kind uint8

const (
	KindInteger Kind = iota + 1
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

// Node is one value of a decoded bencode tree. Exactly one of the value
// fields is meaningful, selected by kind. Dictionary keys are kept sorted.
type Node struct {
	kind     Kind
	integer  int64
	overflow bool
	str      string
	list     []Node
	keys     []string
	dict     map[string]Node
}

// MaxDepth bounds how deeply lists and dictionaries may nest.
const MaxDepth = 100

// Decode parses a complete bencoded buffer into a tree. Trailing bytes
// after the top-level value are an error, as is nesting beyond MaxDepth.
func Decode(data []byte) (Node, error) {
	if err := checkDepth(data, MaxDepth); err != nil {
		return Node{}, err
	}
	var v interface{}
	if err := bencode.Unmarshal(data, &v); err != nil {
		return Node{}, err
	}
	return nodeFromValue(v)
}

// checkDepth walks the buffer without recursion and fails once containers
// nest deeper than limit. Other syntax errors are left to the decoder, so
// the walk simply stops at the first byte it does not understand.
func checkDepth(data []byte, limit int) error {
	depth := 0
	for i := 0; i < len(data); {
		switch c := data[i]; {
		case c == 'l' || c == 'd':
			depth++
			if depth > limit {
				return fmt.Errorf("nesting exceeds depth %d at offset %d", limit, i)
			}
			i++
		case c == 'e':
			if depth == 0 {
				return nil
			}
			depth--
			i++
		case c == 'i':
			end := bytes.IndexByte(data[i:], 'e')
			if end < 0 {
				return nil
			}
			i += end + 1
		case c >= '0' && c <= '9':
			colon := bytes.IndexByte(data[i:], ':')
			if colon < 0 {
				return nil
			}
			n, err := strconv.Atoi(string(data[i : i+colon]))
			if err != nil || n > len(data)-i-colon-1 {
				return nil
			}
			i += colon + 1 + n
		default:
			return nil
		}
	}
	return nil
}

func nodeFromValue(v interface{}) (Node, error) {
	switch val := v.(type) {
	case int64:
		return Node{kind: KindInteger, integer: val}, nil
	case int:
		return Node{kind: KindInteger, integer: int64(val)}, nil
	case *big.Int:
		if val.IsInt64() {
			return Node{kind: KindInteger, integer: val.Int64()}, nil
		}
		return Node{kind: KindInteger, overflow: true}, nil
	case string:
		return Node{kind: KindString, str: val}, nil
	case []byte:
		return Node{kind: KindString, str: string(val)}, nil
	case []interface{}:
		list := make([]Node, 0, len(val))
		for _, item := range val {
			n, err := nodeFromValue(item)
			if err != nil {
				return Node{}, err
			}
			list = append(list, n)
		}
		return Node{kind: KindList, list: list}, nil
	case map[string]interface{}:
		dict := make(map[string]Node, len(val))
		keys := make([]string, 0, len(val))
		for k, item := range val {
			n, err := nodeFromValue(item)
			if err != nil {
				return Node{}, err
			}
			dict[k] = n
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Node{kind: KindDict, dict: dict, keys: keys}, nil
	default:
		return Node{}, fmt.Errorf("unsupported bencode value %T", v)
	}
}

// Kind reports which value field is meaningful.
func (n Node) Kind() Kind { return n.kind }

// Int returns the integer value. It fails for non-integers and for
// integers that do not fit in 64 bits.
func (n Node) Int() (int64, bool) {
	if n.kind != KindInteger || n.overflow {
		return 0, false
	}
	return n.integer, true
}

// Str returns the byte string value.
func (n Node) Str() (string, bool) {
	if n.kind != KindString {
		return "", false
	}
	return n.str, true
}

// List returns the list elements.
func (n Node) List() ([]Node, bool) {
	if n.kind != KindList {
		return nil, false
	}
	return n.list, true
}

// Keys returns the dictionary keys in sorted order.
func (n Node) Keys() []string {
	if n.kind != KindDict {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Get looks up a dictionary entry.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindDict {
		return Node{}, false
	}
	v, ok := n.dict[key]
	return v, ok
}

func (n Node) dictInt(key string) (int64, bool) {
	v, ok := n.Get(key)
	if !ok {
		return 0, false
	}
	return v.Int()
}

func (n Node) dictString(key string) (string, bool) {
	v, ok := n.Get(key)
	if !ok {
		return "", false
	}
	return v.Str()
}

func (n Node) dictList(key string) ([]Node, bool) {
	v, ok := n.Get(key)
	if !ok {
		return nil, false
	}
	return v.List()
}

// preferredString returns the first key of keys holding a string.
func (n Node) preferredString(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := n.dictString(k); ok {
			return s, true
		}
	}
	return "", false
}

// rawInfo extracts the exact byte range of the top-level "info" value.
func rawInfo(data []byte) ([]byte, error) {
	var top struct {
		Info bencode.Bytes `bencode:"info"`
	}
	if err := bencode.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	return append([]byte(nil), top.Info...), nil
}
