// Package wire is the versioned binary format used to exchange bees,
// flowers, dances and reduction vectors between distributed workers.
//
// Every message starts with a header: magic "HV", a version byte, a kind
// byte and a little-endian uint32 record count. Records are fixed-size
// little-endian fields; optional references carry a presence byte.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
)

// Version is the current wire format version.
const Version = 1

// Kind identifies the record type of a message.
type Kind byte

const (
	KindBees Kind = iota + 1
	KindFlowers
	KindDances
	KindFloats
)

func (k Kind) String() string {
	switch k {
	case KindBees:
		return "bees"
	case KindFlowers:
		return "flowers"
	case KindDances:
		return "dances"
	case KindFloats:
		return "floats"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

const headerSize = 8

// Record sizes in bytes.
const (
	beeSize    = 4 + 16 + 16 + 1 + 8 + 5 + 5 + 16 + 8 + 4 + 4
	flowerSize = 4 + 16 + 8 + 4 + 8 + 4
	danceSize  = 4 + 16 + 8 + 8 + 4
	floatSize  = 8
)

var (
	ErrShort   = errors.New("wire: message truncated")
	ErrMagic   = errors.New("wire: bad magic")
	ErrVersion = errors.New("wire: unsupported version")
	ErrKind    = errors.New("wire: unexpected record kind")
	ErrCount   = errors.New("wire: record count mismatch")
)

var le = binary.LittleEndian

func appendHeader(dst []byte, k Kind, n int) []byte {
	dst = append(dst, 'H', 'V', Version, byte(k))
	return le.AppendUint32(dst, uint32(n))
}

// Header parses a message header and returns its kind and record count.
func Header(data []byte) (Kind, int, error) {
	if len(data) < headerSize {
		return 0, 0, ErrShort
	}
	if data[0] != 'H' || data[1] != 'V' {
		return 0, 0, ErrMagic
	}
	if data[2] != Version {
		return 0, 0, fmt.Errorf("%w: %d", ErrVersion, data[2])
	}
	return Kind(data[3]), int(le.Uint32(data[4:8])), nil
}

// body validates the header against the expected kind and returns the
// record bytes.
func body(data []byte, want Kind, recSize int) ([]byte, int, error) {
	k, n, err := Header(data)
	if err != nil {
		return nil, 0, err
	}
	if k != want {
		return nil, 0, fmt.Errorf("%w: got %v, want %v", ErrKind, k, want)
	}
	rest := data[headerSize:]
	if len(rest) < n*recSize {
		return nil, 0, fmt.Errorf("%w: %d %v need %d bytes, have %d", ErrShort, n, k, n*recSize, len(rest))
	}
	return rest, n, nil
}

func appendF64(dst []byte, v float64) []byte { return le.AppendUint64(dst, math.Float64bits(v)) }

func appendVec(dst []byte, v r2.Vec) []byte { return appendF64(appendF64(dst, v.X), v.Y) }

func appendRef(dst []byte, r components.Ref) []byte {
	idx, ok := r.Get()
	if !ok {
		return append(dst, 0, 0, 0, 0, 0)
	}
	return le.AppendUint32(append(dst, 1), uint32(int32(idx)))
}

// reader consumes fixed-size fields; callers check lengths up front.
type reader struct {
	b []byte
}

func (r *reader) u8() byte {
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

func (r *reader) i32() int32 {
	v := int32(le.Uint32(r.b))
	r.b = r.b[4:]
	return v
}

func (r *reader) f64() float64 {
	v := math.Float64frombits(le.Uint64(r.b))
	r.b = r.b[8:]
	return v
}

func (r *reader) vec() r2.Vec {
	x := r.f64()
	return r2.Vec{X: x, Y: r.f64()}
}

func (r *reader) ref() components.Ref {
	ok := r.u8() != 0
	idx := r.i32()
	if !ok {
		return components.None
	}
	return components.RefTo(int(idx))
}
