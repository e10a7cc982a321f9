package repository

import "errors"

var (
	// ErrRunNotFound indicates the detection run was not found
	ErrRunNotFound = errors.New("detection run not found")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
