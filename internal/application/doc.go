// Package application implements the device application that sits on top
// of the connectivity orchestrator.
//
// Two kinds exist:
//   - dummy: a simulated temperature sensor. While the broker session is
//     ready it publishes {"temperature_celsius":x} every publish interval,
//     x running from 1.0 to 50.0 in steps of 0.1 and wrapping back to 1.0.
//     The bare commands "stop" and "restart" pause and resume publishing.
//   - switch: applies {"action":"switch_open"} and
//     {"action":"switch_close"} to an Actuator.
//
// The App runs on its own goroutine. The orchestrator's Consumer callbacks
// only enqueue events, and every delivered message is released with
// Link.Consumed once processed. At most one reading is in flight at a time.
package application
