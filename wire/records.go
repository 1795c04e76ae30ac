package wire

import (
	"fmt"

	"github.com/pthm-cable/hive/components"
)

// AppendBees encodes bees onto dst.
func AppendBees(dst []byte, bees []components.Bee) []byte {
	dst = appendHeader(dst, KindBees, len(bees))
	for i := range bees {
		b := &bees[i]
		dst = le.AppendUint32(dst, uint32(b.ID))
		dst = appendVec(dst, b.Pos)
		dst = appendVec(dst, b.Vel)
		dst = append(dst, byte(b.State))
		dst = appendF64(dst, b.Energy)
		dst = appendRef(dst, b.Target)
		dst = appendRef(dst, b.Recruiter)
		dst = appendVec(dst, b.DanceTarget)
		dst = appendF64(dst, b.NectarFound)
		dst = le.AppendUint32(dst, uint32(b.Followers))
		dst = le.AppendUint32(dst, uint32(b.DanceTimer))
	}
	return dst
}

// DecodeBees appends the bees in data to dst.
func DecodeBees(data []byte, dst []components.Bee) ([]components.Bee, error) {
	rest, n, err := body(data, KindBees, beeSize)
	if err != nil {
		return dst, err
	}
	r := reader{b: rest}
	for i := 0; i < n; i++ {
		var b components.Bee
		b.ID = r.i32()
		b.Pos = r.vec()
		b.Vel = r.vec()
		b.State = components.BeeState(r.u8())
		b.Energy = r.f64()
		b.Target = r.ref()
		b.Recruiter = r.ref()
		b.DanceTarget = r.vec()
		b.NectarFound = r.f64()
		b.Followers = r.i32()
		b.DanceTimer = r.i32()
		dst = append(dst, b)
	}
	return dst, nil
}

// AppendFlowers encodes flowers onto dst.
func AppendFlowers(dst []byte, flowers []components.Flower) []byte {
	dst = appendHeader(dst, KindFlowers, len(flowers))
	for i := range flowers {
		f := &flowers[i]
		dst = le.AppendUint32(dst, uint32(f.ID))
		dst = appendVec(dst, f.Pos)
		dst = appendF64(dst, f.Total)
		dst = le.AppendUint32(dst, uint32(f.Capacity))
		dst = appendF64(dst, f.Nectar())
		dst = le.AppendUint32(dst, uint32(f.Feeding()))
	}
	return dst
}

// DecodeFlowers overwrites dst with the flowers in data. The counts must match.
func DecodeFlowers(data []byte, dst []components.Flower) error {
	rest, n, err := body(data, KindFlowers, flowerSize)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: %d flowers for %d slots", ErrCount, n, len(dst))
	}
	r := reader{b: rest}
	for i := range dst {
		id := r.i32()
		pos := r.vec()
		total := r.f64()
		capacity := r.i32()
		f := components.NewFlower(int(id), pos, total, int(capacity))
		f.SetNectar(r.f64())
		f.SetFeeding(r.i32())
		dst[i] = f
	}
	return nil
}

// AppendDances encodes dances onto dst.
func AppendDances(dst []byte, dances []components.Dance) []byte {
	dst = appendHeader(dst, KindDances, len(dances))
	for i := range dances {
		d := &dances[i]
		dst = le.AppendUint32(dst, uint32(d.Owner))
		dst = appendVec(dst, d.Target)
		dst = appendF64(dst, d.Quality)
		dst = appendF64(dst, d.Distance)
		dst = le.AppendUint32(dst, uint32(d.Followers))
	}
	return dst
}

// DecodeDances appends the dances in data to dst.
func DecodeDances(data []byte, dst []components.Dance) ([]components.Dance, error) {
	rest, n, err := body(data, KindDances, danceSize)
	if err != nil {
		return dst, err
	}
	r := reader{b: rest}
	for i := 0; i < n; i++ {
		var d components.Dance
		d.Owner = r.i32()
		d.Target = r.vec()
		d.Quality = r.f64()
		d.Distance = r.f64()
		d.Followers = r.i32()
		dst = append(dst, d)
	}
	return dst, nil
}

// AppendFloats encodes a float vector onto dst.
func AppendFloats(dst []byte, v []float64) []byte {
	dst = appendHeader(dst, KindFloats, len(v))
	for _, x := range v {
		dst = appendF64(dst, x)
	}
	return dst
}

// DecodeFloats appends the floats in data to dst.
func DecodeFloats(data []byte, dst []float64) ([]float64, error) {
	rest, n, err := body(data, KindFloats, floatSize)
	if err != nil {
		return dst, err
	}
	r := reader{b: rest}
	for i := 0; i < n; i++ {
		dst = append(dst, r.f64())
	}
	return dst, nil
}
