package sip

import (
	"io"
	"slices"
	"strings"
)

// HeaderKV is a key-value pair for URI or header params.
type HeaderKV struct {
	K string
	V string
}

// HeaderParams are ordered key value params.
type HeaderParams []HeaderKV

// NewParams creates an empty set of parameters.
func NewParams() HeaderParams {
	// Typical number of params: Via 2, URI 1-2.
	return make(HeaderParams, 0, 4)
}

func (hp HeaderParams) index(key string) int {
	for i, kv := range hp {
		if kv.K == key {
			return i
		}
	}
	return -1
}

// Get returns a value for a given key, if it exists.
func (hp HeaderParams) Get(key string) (string, bool) {
	if i := hp.index(key); i >= 0 {
		return hp[i].V, true
	}
	return "", false
}

// Add will add new key-value. If key exists it will be overwritten.
func (hp *HeaderParams) Add(key string, val string) HeaderParams {
	if i := hp.index(key); i >= 0 {
		(*hp)[i].V = val
	} else {
		*hp = append(*hp, HeaderKV{K: key, V: val})
	}
	return *hp
}

// Remove removes all values with a given key.
func (hp *HeaderParams) Remove(key string) HeaderParams {
	for {
		i := hp.index(key)
		if i < 0 {
			return *hp
		}
		*hp = slices.Delete(*hp, i, i+1)
	}
}

// Has checks does key exists
func (hp HeaderParams) Has(key string) bool {
	return hp.index(key) >= 0
}

// Length returns number of params.
func (hp HeaderParams) Length() int {
	return len(hp)
}

// Clone returns underneath params copied
func (hp HeaderParams) Clone() HeaderParams {
	return hp.clone()
}

func (hp HeaderParams) clone() HeaderParams {
	return slices.Clone(hp)
}

// ToString renders params joined with sep.
func (hp HeaderParams) ToString(sep byte) string {
	var buffer strings.Builder
	hp.ToStringWrite(sep, &buffer)
	return buffer.String()
}

// ToStringWrite is same as ToString but writes into buffer.
func (hp HeaderParams) ToStringWrite(sep byte, buffer io.StringWriter) {
	sepstr := string(sep)
	for i, kv := range hp {
		if i > 0 {
			buffer.WriteString(sepstr)
		}
		buffer.WriteString(kv.K)
		if kv.V != "" {
			// Params can be valueless like ;rport;
			buffer.WriteString("=")
			buffer.WriteString(kv.V)
		}
	}
}

// parseParams parses a ;-joined (or ,-joined for auth) param list into hp.
// Values may be quoted; quotes are stripped.
func parseParams(s string, sep byte, hp *HeaderParams) {
	for _, part := range strings.Split(s, string(sep)) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		v = strings.Trim(v, "\"")
		hp.Add(k, v)
	}
}
