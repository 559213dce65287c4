package world

import "errors"

var ErrUnloadedChunk = errors.New("chunk is not loaded")
