package config

import "errors"

var (
	// ErrConfigRead matches errors for a missing or unreadable config file.
	ErrConfigRead = errors.New("config read error")
	// ErrConfigParse matches errors for content that is not well-formed.
	ErrConfigParse = errors.New("config parse error")
)

// ReadError wraps the filesystem failure for Path.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return "read config " + e.Path + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() []error { return []error{ErrConfigRead, e.Err} }

// ParseError wraps the decoding failure for Path.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "parse config " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() []error { return []error{ErrConfigParse, e.Err} }
