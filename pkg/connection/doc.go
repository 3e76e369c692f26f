// Package connection supervises the AMQP link underneath a device session
// controller.
//
// The controller itself never retries or reconnects on its own; retry
// policy is deliberately left to the caller (SetRetryPolicy on the
// controller always fails). Supervisor is the caller-side collaborator
// that fills that role: it wraps an AMQP DialFunc with exponential
// redial backoff and automatic redialing, independent of the
// controller's own aggregate state machine.
//
// This package handles:
//   - Exponential backoff for redial attempts (RedialBackoff)
//   - Jitter to prevent thundering herd across many devices
//   - Link state tracking (LinkState)
//   - Automatic redialing on link loss
//
// # Redial strategy
//
// When the link is lost, Supervisor redials with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until a dial succeeds
//  5. Reset to 1s once the link comes back up
//
// # Jitter
//
// To prevent thundering herd when many devices redial at once:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A successful redial is a successful call of the caller's DialFunc, which
// re-dials the AMQP connection, re-opens the CBS link and hands them to the
// session Controller via StartAsync; Supervisor itself never calls into the
// Controller.
package connection
