// Package session implements the device session controller: the aggregate
// state machine that drives a single IoT device's lifecycle over an AMQP
// connection by reconciling a CBS authentication worker and a telemetry
// messenger behind one state and one event stream.
//
// The controller never retries internally (Controller.SetRetryPolicy
// always fails) and is never internally thread-safe: callers drive it
// single-threaded by invoking DoWork repeatedly, and must not re-enter the
// controller from within a callback it invoked. See pkg/connection for the
// caller-side retry/reconnect helper this design deliberately pushes
// outward.
package session
