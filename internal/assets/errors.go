package assets

import "errors"

var (
	ErrNotFound        = errors.New("asset not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidCategory = errors.New("invalid category")
	ErrUnsupportedFile = errors.New("unsupported file type")
)
