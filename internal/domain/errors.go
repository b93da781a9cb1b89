package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch: no decodable image was found after scanning the whole archive.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrInvalidArchive: the input could not be opened as an archive at all.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrZeroMeanImage marks an image whose mean intensity is exactly zero.
	ErrZeroMeanImage = errors.New("zero mean image")
	ErrInvalidOptions = errors.New("invalid options")
	ErrNotFound       = errors.New("not found")
)

// DecodeError reports an archive entry that looked like an image but could not be decoded.
type DecodeError struct {
	Entry string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Entry, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
