package core

import (
	"errors"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrDocumentInvalid  = errors.New("scene document is invalid")
	ErrUnsupportedImage = errors.New("unsupported texture image")
	ErrModelLoaded      = errors.New("model already loaded")
	ErrPoolDisposed     = errors.New("transform pool already disposed")
	ErrWatcherClosed    = errors.New("asset watcher already closed")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrUnknown          = errors.New("unknown")
)
