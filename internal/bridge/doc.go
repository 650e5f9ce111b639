// Package bridge exposes the receiver over MQTT.
//
// Inbound topics:
//
//	catspaw/command/avr/power    {"state": "on" | "off" | "status"}
//	catspaw/command/avr/volume   {"action": "up" | "down", "amount": 3, "ratio": false}
//	catspaw/command/avr/mute     {}
//	catspaw/command/avr/refresh  {}
//	catspaw/command/system/power {"event": "suspend" | "resume"}
//
// Every AVR command is answered on catspaw/ack/avr/{command}. Controller
// events are published retained on catspaw/state/avr and popup
// visibility on catspaw/ui/volume_popup.
//
// Payloads may carry an "id" that is echoed in the acknowledgement for
// correlation. An empty payload is accepted where no field is required.
package bridge
