// Package kraconnect is a client for the Kenya Revenue Authority verification
// API. Every call goes through a resilience pipeline:
//
//   - Input validation before any network traffic
//   - Response caching keyed by an operation fingerprint (in-memory LRU or Redis)
//   - De-duplication of concurrent identical operations
//   - Fixed-window or token-bucket rate limiting, shared and per operation kind
//   - Retries with exponential backoff + jitter for transient failures only
//   - Optional circuit breaker and retry budget
//   - Concurrent batch execution with per-item results in input order
//   - Prometheus metrics and opt-in structured debug logging
//
// Every failure is classified into exactly one ErrorKind, which decides
// whether it is retried. Rate-limit failures are never retried internally;
// callers get RetryAfter instead.
//
// Typical usage:
//
//	client, err := kraconnect.New(
//	    kraconnect.WithAPIKey(os.Getenv("KRA_API_KEY")),
//	    kraconnect.WithMaxAttempts(3),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	res := client.VerifyPIN(ctx, "P051234567A")
//	if res.Err != nil {
//	    log.Printf("verification failed: %v", res.Err)
//	}
//
// A Client is safe for concurrent use and owns its cache and limiter; create
// one per credential set.
package kraconnect
