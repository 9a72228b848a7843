package interfaces

import "github.com/m-mizutani/goerr/v2"

// Errors shared by all repository backends
var (
	ErrNotFound      = goerr.New("not found")
	ErrAlreadyExists = goerr.New("already exists")
)
