// Package concurrency provides a context-aware counting semaphore.
//
// The reactive operators use a Limiter to cap how many inner sources a
// FlatMap keeps subscribed at once:
//
//	l := concurrency.MustNew(4)
//	if err := l.Wait(ctx); err != nil {
//		return err
//	}
//	defer l.Release()
package concurrency
