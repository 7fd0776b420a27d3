package metadata

import "strconv"

// Keys set on every message published by the node.
const (
	KeySchema      = "framepub_schema"
	KeyContentType = "content_type"
	KeyNode        = "framepub_node"
	KeyTick        = "framepub_tick"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	cloned := make(Metadata, len(m)+extra)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// WithTick returns a copy carrying the tick number.
func (m Metadata) WithTick(tick uint64) Metadata {
	return m.With(KeyTick, strconv.FormatUint(tick, 10))
}

// Tick returns the tick number stored under KeyTick.
func (m Metadata) Tick() (uint64, bool) {
	raw, ok := m[KeyTick]
	if !ok {
		return 0, false
	}
	tick, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return tick, true
}

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
