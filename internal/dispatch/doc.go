// Package dispatch is the privileged entry point for relayed requests.
//
// Each request gets exactly one response:
//   - the capability is configured first when it is missing, disabled or its
//     preferences changed since the last configuration; failure answers
//     "Error configuring plugin"
//   - the processor runs in its own goroutine under the request timeout
//   - capability errors, panics and timeouts answer
//     "Unexpected JS exception: <message>"
//
// Requests are handled concurrently. Replies are correlated by txid only.
package dispatch
