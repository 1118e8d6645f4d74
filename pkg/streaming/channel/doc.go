/*
Package channel provides a bounded, context-aware FIFO buffer with a
configurable overflow strategy.

Go channels block when full. BackpressureChannel lets the producer choose
instead:

	Block       wait for space (the default)
	Drop        discard the value being sent
	DropOldest  discard the oldest buffered value
	Error       fail the send with ErrChannelFull

Both Send and Receive honour context cancellation. After Close, receivers
drain what is buffered and then get ErrChannelClosed:

	ch := channel.NewWithConfig[Event](channel.Config{
		BufferSize: 256,
		Strategy:   channel.DropOldest,
		OnDrop:     func(v any) { dropped.Inc() },
	})

The reactive package uses it to decouple a fast producer from a slow
subscriber in OnBackpressureBuffer.
*/
package channel
