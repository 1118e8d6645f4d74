package reactive

// DefaultPrefetch is how many values an asynchronous boundary buffers ahead
// of its consumer.
const DefaultPrefetch = 32

// Option tunes an asynchronous operator.
type Option func(*options)

type options struct {
	prefetch int
}

// WithPrefetch sets how many values an asynchronous boundary buffers per
// source. Values below one are ignored.
func WithPrefetch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetch = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{prefetch: DefaultPrefetch}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
