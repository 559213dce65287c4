package store

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds        = errors.New("out of chunk bounds")
	ErrUninitialized      = errors.New("chunk is not yet initialized")
	ErrAlreadyInitialized = errors.New("chunk is already initialized")
	ErrDuplicateChunk     = errors.New("chunk already exists")
	ErrChunkNotFound      = errors.New("chunk not found")
)

// PosError attaches a coordinate to one of the sentinel errors above.
// For ErrOutOfBounds the coordinate is local, otherwise it is a chunk position.
type PosError struct {
	X, Y, Z int
	Err     error
}

func (e *PosError) Error() string {
	return fmt.Sprintf("(%d,%d,%d): %v", e.X, e.Y, e.Z, e.Err)
}

func (e *PosError) Unwrap() error { return e.Err }

func chunkErr(p ChunkPos, err error) error {
	return &PosError{X: p.X, Y: p.Y, Z: p.Z, Err: err}
}

func boundsErr(x, y, z int) error {
	return &PosError{X: x, Y: y, Z: z, Err: ErrOutOfBounds}
}
