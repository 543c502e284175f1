package catalog

import "errors"

// Sentinel errors for the catalog package.
// Use errors.Is to check: errors.Is(err, catalog.ErrNotFound)
var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrDuplicateItem = errors.New("catalog: duplicate item")
	ErrInvalidItem   = errors.New("catalog: invalid item")
)
