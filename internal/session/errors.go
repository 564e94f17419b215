package session

import "errors"

var (
	ErrOutputExists     = errors.New("output file already exists")
	ErrPartialDownload  = errors.New("download incomplete")
	ErrNotDirectory     = errors.New("not a directory")
	ErrDiskSpaceUnknown = errors.New("free space cannot be determined on this platform")
)
