// Package history stores and queries the log of receiver commands.
//
// Every operation the AVR controller runs is written to the
// command_history table with the surface that issued it, the result and
// the state the receiver was left in. The API exposes the log at
// GET /api/v1/avr/history.
package history
