// Package avr controls a Pioneer-style audio/video receiver over the
// network.
//
// The package is layered leaf-first:
//
//   - Connection: one short-lived TCP session (connect with retry,
//     line-framed Send/Exec, idempotent Disconnect).
//   - HTTPClient: the status-document variant used by devices that only
//     expose StatusHandler.asp / EventHandler.asp.
//   - Transport: either of the above behind one Send/Exec contract.
//   - Protocol: the fixed command catalog and reply pattern matching.
//   - Volume helpers: raw level <-> dB display, relative adjustments,
//     hard [0, 185] clamp.
//   - Controller: the façade callers use. It serialises commands, keeps
//     the observable state and absorbs every device fault.
//
// # Wire protocol (TCP)
//
// Commands are ASCII lines terminated by CRLF. Replies are single lines,
// except that a line starting with "FL" (front panel echo) precedes the
// real reply and is discarded:
//
//	?P      -> PWR0        (0 = on, 1 = standby)
//	?V      -> VOL121
//	120VL   -> VOL120      (three-digit level, 0..185)
//	VU / VD -> VOL122
//	PO PF MZ               (no reply is read)
//
// # Error kinds
//
// Every failure wraps one of ErrNetworkTimeout, ErrCommunication or
// ErrProtocolMismatch; KindOf recovers the kind from any wrapped error.
// The Controller never returns them: operations report an Outcome and
// leave the state untouched on failure.
package avr
