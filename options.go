// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package promise

// contextOptions holds configuration for the serialContext reference
// implementation.
type contextOptions struct {
	queueCapacity int
}

// ContextOption configures a Context constructed by this package, such as
// NewSerialContext.
type ContextOption interface {
	applyContext(*contextOptions)
}

// contextOptionImpl implements ContextOption.
type contextOptionImpl struct {
	applyContextFunc func(*contextOptions)
}

func (o *contextOptionImpl) applyContext(opts *contextOptions) {
	o.applyContextFunc(opts)
}

// WithQueueCapacity sets the buffered channel capacity backing
// NewSerialContext. A full queue blocks the calling goroutine's Execute
// until the serial worker catches up. Defaults to 64.
func WithQueueCapacity(capacity int) ContextOption {
	return &contextOptionImpl{func(opts *contextOptions) {
		opts.queueCapacity = capacity
	}}
}

// resolveContextOptions applies ContextOption instances to contextOptions.
func resolveContextOptions(opts []ContextOption) *contextOptions {
	cfg := &contextOptions{queueCapacity: 64}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyContext(cfg)
	}
	return cfg
}
