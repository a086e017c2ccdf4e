// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios and map them onto the
// HTTP error taxonomy.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist or does not
// belong to the caller.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when registering an email that is already
// taken.  Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateOrderNumber is returned when an order insert collides on the
// unique order_number column.  Callers regenerate the number and retry.
var ErrDuplicateOrderNumber = errors.New("duplicate order number")
