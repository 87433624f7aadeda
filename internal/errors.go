package internal

import "errors"

var (
	ErrEmptyFile           = errors.New("file has no data rows")
	ErrUnreadableFile      = errors.New("file is not a readable spreadsheet")
	ErrEmptyCatalog        = errors.New("catalog is empty")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrIngestionInProgress = errors.New("another ingestion is running for this user")
	ErrInsufficientStock   = errors.New("stock cannot go below zero")
	ErrVariantNotFound     = errors.New("variant not found")
)
