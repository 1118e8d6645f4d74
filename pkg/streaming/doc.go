/*
Package streaming groups the reactive engine and the pieces it streams
through.

  - reactive: Single and Many sources with demand-driven subscriptions
  - channel: bounded buffers with Block, Drop, DropOldest and Error strategies
  - sse: writes a Many to an HTTP response as server-sent events

Basic usage:

	names := reactive.Map(repo.FindAll(), func(p repository.Participant) string {
		return p.Name
	})
	err := sse.Write(ctx, w, names)
*/
package streaming
