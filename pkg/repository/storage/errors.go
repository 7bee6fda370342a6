package storage

import "github.com/m-mizutani/goerr/v2"

// ErrNotFound is returned when an attachment blob does not exist
var ErrNotFound = goerr.New("attachment not found")
