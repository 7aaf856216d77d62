// Package network tracks whether the device can reach the outside world.
//
// A Monitor dials a probe address (TCP) on a fixed interval and reports the
// link as connected while the dial succeeds. Subscribers are told about
// every transition; the channel provider turns those into
// NetworkStatusChanged notifications for each reservation.
//
// A successful TCP handshake is the whole check: the connection is closed
// straight away and nothing is written to it.
package network
