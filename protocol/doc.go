// Package protocol defines the messages exchanged between a plugin and the
// Ardeck studio and their JSON wire encoding.
//
// Every frame is a text WebSocket frame holding an envelope
//
//	{"op": <opcode>, "data": <payload>}
//
// where the opcode selects one of four payload shapes:
//
//	0  Hello    plugin -> studio, sent once right after connecting
//	1  Success  studio -> plugin, confirms the session
//	2  Message  either direction, free text tagged "log" or "error"
//	3  Action   studio -> plugin, a switch event bound to an action
//
// Field names are camelCase. The opcode is always written as a JSON number;
// Decode also accepts the numeric string form ("3") that older studio builds
// emit.
package protocol
