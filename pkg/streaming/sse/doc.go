// Package sse writes a reactive.Many to an HTTP response as server-sent
// events.
//
// Write requests one value at a time: a value is encoded, written and
// flushed before the next one is requested, so a slow client slows the
// source instead of growing a buffer.
//
//	router.GET("/sse", func(c *gin.Context) {
//		_ = sse.Write(c.Request.Context(), c.Writer, ticks, sse.WithStream("ticks"))
//	})
package sse
