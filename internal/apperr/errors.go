package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPatch   = errors.New("invalid patch")
	ErrOfflineNoCache = errors.New("offline and no cached tickets")
	ErrGateway        = errors.New("gateway unavailable")
	ErrCacheClosed    = errors.New("cache closed")
)
