package storage

import (
	"errors"

	"mpesapool/internal/model"
)

// Storage errors shared by the file and Postgres stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Sink appends records in order.
type Sink[T any] interface {
	Append(records []T) error
}

// SubmissionSink receives decoded gateway submissions.
type SubmissionSink = Sink[model.Submission]

// DecodeErrorSink receives gateway logs that failed to decode.
type DecodeErrorSink = Sink[model.DecodeError]
