package provider

import "errors"

var (
	ErrNotFound        = errors.New("provider: not found")
	ErrRateLimited     = errors.New("provider: rate limited")
	ErrTemporary       = errors.New("provider: temporary failure")
	ErrInvalidResponse = errors.New("provider: invalid response")
	ErrInvalidConfig   = errors.New("provider: invalid config")
)

func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsRateLimited(err error) bool     { return errors.Is(err, ErrRateLimited) }
func IsTemporary(err error) bool       { return errors.Is(err, ErrTemporary) }
func IsInvalidResponse(err error) bool { return errors.Is(err, ErrInvalidResponse) }
