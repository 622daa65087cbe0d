package guest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// ReadU32 reads a little-endian uint32 at p.
func ReadU32[T any](ctx context.Context, g Instance, p xptr.Pointer[T]) (uint32, error) {
	var buf [4]byte
	if err := g.Read(ctx, p.Offset, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteU32 writes a little-endian uint32 at p.
func WriteU32[T any](ctx context.Context, g Instance, p xptr.Pointer[T], v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return g.Write(ctx, p.Offset, buf[:])
}

// ReadF64 reads a little-endian float64 at p.
func ReadF64[T any](ctx context.Context, g Instance, p xptr.Pointer[T]) (float64, error) {
	var buf [8]byte
	if err := g.Read(ctx, p.Offset, buf[:]); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(buf[:])
	return math.Float64frombits(bits), nil
}

// WriteF64 writes a little-endian float64 at p.
func WriteF64[T any](ctx context.Context, g Instance, p xptr.Pointer[T], v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return g.Write(ctx, p.Offset, buf[:])
}

// ReadPointer reads a pointer-typed field: a plain uint32 offset stored
// in guest memory, reinterpreted as Pointer[U].
func ReadPointer[T, U any](ctx context.Context, g Instance, p xptr.Pointer[T]) (xptr.Pointer[U], error) {
	v, err := ReadU32(ctx, g, p)
	if err != nil {
		return xptr.Pointer[U]{}, err
	}
	return xptr.Pointer[U]{Offset: v}, nil
}

// ReadCString reads a NUL-terminated string starting at p, capped at
// maxLen bytes (not counting the terminator), matching the countUntil +
// getArray idiom the guest SDK uses for feature strings and names.
func ReadCString[T any](ctx context.Context, g Instance, p xptr.Pointer[T], maxLen uint32) (string, error) {
	if p.Offset == 0 {
		return "", nil
	}
	n, err := g.CountUntil(ctx, p.Offset, 1, []byte{0}, maxLen)
	if err != nil {
		return "", fmt.Errorf("guest: read c string: %w", err)
	}
	buf := make([]byte, n)
	if n > 0 {
		if err := g.Read(ctx, p.Offset, buf); err != nil {
			return "", fmt.Errorf("guest: read c string: %w", err)
		}
	}
	return string(buf), nil
}

// WriteCString allocates and writes a NUL-terminated string into the
// guest, returning its offset. alloc is typically an arena's Alloc.
func WriteCString(ctx context.Context, g Instance, alloc func(ctx context.Context, size uint32) (uint32, error), s string) (uint32, error) {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	off, err := alloc(ctx, uint32(len(buf)))
	if err != nil {
		return 0, err
	}
	if err := g.Write(ctx, off, buf); err != nil {
		return 0, err
	}
	return off, nil
}
