// Package buffer holds the fixed-capacity storage backing every string and
// byte field of the published messages. A Bounded buffer is allocated once;
// its capacity never changes and writes that do not fit are rejected whole.
package buffer

import (
	"fmt"

	errspkg "github.com/drblury/framepub/internal/runtime/errors"
)

// MaxCapacity bounds a single allocation. Larger requests fail with
// ErrAllocation instead of reaching the runtime allocator.
const MaxCapacity = 16 << 20

// Bounded is a byte sequence with a tracked logical size and an immutable
// capacity. The zero value has zero capacity.
type Bounded struct {
	data     []byte
	size     int
	capacity int
	released bool
}

// New allocates a buffer able to hold capacity bytes. The buffer starts empty.
func New(capacity int) (*Bounded, error) {
	if capacity < 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d outside [0, %d]", errspkg.ErrAllocation, capacity, MaxCapacity)
	}
	return &Bounded{
		data:     make([]byte, capacity),
		capacity: capacity,
	}, nil
}

// NewFromString allocates a buffer sized exactly to s and fills it.
func NewFromString(s string) (*Bounded, error) {
	b, err := New(len(s))
	if err != nil {
		return nil, err
	}
	if err := b.WriteString(s); err != nil {
		return nil, err
	}
	return b, nil
}

// Write copies p into the buffer from offset zero and sets the size to
// len(p). When len(p) exceeds the capacity nothing is copied and the previous
// content and size are kept.
func (b *Bounded) Write(p []byte) error {
	if b.released {
		return errspkg.ErrReleased
	}
	if len(p) > b.capacity {
		return fmt.Errorf("%w: %d bytes into capacity %d", errspkg.ErrCapacityExceeded, len(p), b.capacity)
	}
	b.size = copy(b.data, p)
	return nil
}

// WriteString is Write for string content.
func (b *Bounded) WriteString(s string) error {
	if b.released {
		return errspkg.ErrReleased
	}
	if len(s) > b.capacity {
		return fmt.Errorf("%w: %d bytes into capacity %d", errspkg.ErrCapacityExceeded, len(s), b.capacity)
	}
	b.size = copy(b.data, s)
	return nil
}

// Bytes returns the used portion of the storage. The slice aliases the
// buffer and is only valid until the next write.
func (b *Bounded) Bytes() []byte {
	if b.released {
		return nil
	}
	return b.data[:b.size:b.size]
}

// String returns a copy of the used portion as a string.
func (b *Bounded) String() string {
	return string(b.Bytes())
}

// Size returns the number of bytes written by the last successful write.
func (b *Bounded) Size() int { return b.size }

// Capacity returns the allocation size fixed at construction.
func (b *Bounded) Capacity() int { return b.capacity }

// Released reports whether Release has been called.
func (b *Bounded) Released() bool { return b.released }

// Release drops the storage. Further writes fail with ErrReleased.
// Calling Release more than once is a no-op.
func (b *Bounded) Release() {
	b.data = nil
	b.size = 0
	b.released = true
}
