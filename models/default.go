package models

import "errors"

var (
	ErrBusinessIdRequired      = errors.New("business id is required")
	ErrWorkerIdRequired        = errors.New("worker id is required")
	ErrPackagedExceedsFinished = errors.New("packaged quantity cannot exceed finished quantity")
)
