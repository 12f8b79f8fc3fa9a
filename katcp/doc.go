// Package katcp converts katcp-like protocol lines between the device form, where binary
// payloads are embedded as raw bytes, and the client form, where the same payloads are
// carried as standard base64 text.
//
// Two line shapes carry a payload:
//
//	!read ok <payload>               read reply
//	?write <name> <offset> <payload> write request
//
// Every other line is opaque and passes through byte for byte. Conversion is stateless
// and works on one line at a time; the line terminator must already be stripped.
//
// The two directions are inverse operations for the payload shapes:
//
//	text, _ := katcp.DeviceToClient(deviceLine)
//	raw, _ := katcp.ClientToDevice(text) // bytes.Equal(raw, deviceLine)
package katcp
