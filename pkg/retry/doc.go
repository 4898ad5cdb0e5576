// Package retry runs an operation with exponential backoff.
//
// Retries stop early when the operation returns an error that the errors
// package classifies as invalid or fatal; anything else is retried until the
// policy's attempts run out or the context ends.
//
//	err := retry.Do(ctx, retry.Startup(), func(ctx context.Context) error {
//		return client.Connect(ctx)
//	})
package retry
