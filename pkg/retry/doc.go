// Package retry provides a policy-driven retry combinator with exponential
// backoff for unreliable operations. Retries are selective: only failures
// whose fault kind is whitelisted by the policy are attempted again, and the
// backoff sleep is cancellable through the caller's context. The sleep
// function is injectable so tests run without real waiting.
package retry
