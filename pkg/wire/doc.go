// Package wire defines the JSON envelope exchanged between the console and
// the virtual device / DMS backends, and the closed set of message types
// carried inside it.
//
// # Envelope
//
// Every frame on the channel, in both directions, is a single JSON object:
//
//	{ "type": "DEVICE_UPDATED", "message": { ... }, "time": 1700000000000 }
//
// The message body is optional for commands that carry no parameters; the
// console sends an empty object in that case. Time is the sender's wall clock
// in epoch milliseconds.
//
// # Inbound messages
//
// Server pushes decode into the sealed Inbound union (DeviceUpdated, MQTTLog,
// DMSUpdate, EnrolledIdentitiesUpdate, EnrollingProcessUpdate). Adding a new
// inbound type means adding a new variant here, which makes every type switch
// over Inbound in the router an explicit change.
//
// Every inbound push is a full snapshot of the server-side entity. Consumers
// replace their state wholesale; there are no deltas on this protocol.
//
// # Outbound commands
//
// Commands are plain intents with no acknowledgement. Constructors exist for
// each command type (Enroll, AuthorizeTransfer, ...).
package wire
