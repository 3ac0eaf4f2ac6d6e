// Package resilience wraps calls to unreliable downstream dependencies with
// per-dependency circuit breakers and exponential-backoff retries.
//
// Breaker state lives in an explicit BreakerRegistry keyed by dependency name
// rather than package-level globals, so processes can construct, inspect, and
// reset breakers deterministically:
//
//	breakers := resilience.NewBreakerRegistry()
//	exec := resilience.NewExecutor(breakers)
//
//	msgID, err := resilience.Execute(ctx, exec, "push-provider", 3,
//		func(ctx context.Context) (string, error) {
//			return client.SendOne(ctx, token, payload)
//		})
//	if resilience.IsCircuitOpen(err) {
//		// no call was made; the dependency is cooling down
//	}
//
// Retry eligibility follows the error's Temporary flag: errors implementing
// TemporaryError with Temporary() == true are retried up to the caller's
// attempt budget, everything else is returned immediately.
package resilience
