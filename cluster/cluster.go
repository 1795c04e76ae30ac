// Package cluster provides the collective operations distributed workers
// use to reconcile their replicas. Every collective is built on AllGather.
package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/pthm-cable/hive/wire"
)

// ErrClosed is returned by collectives on a closed communicator.
var ErrClosed = errors.New("cluster: communicator closed")

// Comm connects one rank to its group.
type Comm interface {
	Rank() int
	Size() int
	// AllGather contributes payload and returns every rank's payload,
	// indexed by rank. It returns only after all ranks contributed.
	// The returned slices must not be modified.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)
	Close() error
}

// Barrier blocks until every rank reaches it.
func Barrier(ctx context.Context, c Comm) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

// Bcast returns root's payload on every rank.
func Bcast(ctx context.Context, c Comm, root int, payload []byte) ([]byte, error) {
	if c.Rank() != root {
		payload = nil
	}
	parts, err := c.AllGather(ctx, payload)
	if err != nil {
		return nil, err
	}
	return parts[root], nil
}

// AllReduceMin replaces v with the elementwise minimum across ranks.
func AllReduceMin(ctx context.Context, c Comm, v []float64) error {
	return allReduce(ctx, c, v, func(acc, x float64) float64 { return min(acc, x) })
}

// AllReduceSum replaces v with the elementwise sum across ranks. Terms are
// added in rank order so every rank gets the same bits.
func AllReduceSum(ctx context.Context, c Comm, v []float64) error {
	return allReduce(ctx, c, v, func(acc, x float64) float64 { return acc + x })
}

func allReduce(ctx context.Context, c Comm, v []float64, op func(acc, x float64) float64) error {
	parts, err := c.AllGather(ctx, wire.AppendFloats(nil, v))
	if err != nil {
		return err
	}
	buf := make([]float64, 0, len(v))
	for rank, p := range parts {
		buf, err = wire.DecodeFloats(p, buf[:0])
		if err != nil {
			return fmt.Errorf("reduce: rank %d: %w", rank, err)
		}
		if len(buf) != len(v) {
			return fmt.Errorf("reduce: rank %d sent %d values, want %d", rank, len(buf), len(v))
		}
		for i, x := range buf {
			if rank == 0 {
				v[i] = x
			} else {
				v[i] = op(v[i], x)
			}
		}
	}
	return nil
}
