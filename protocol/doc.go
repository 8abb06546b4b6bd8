// Package protocol implements the 64-byte HID report codec used by the
// Microchip MCP2221/MCP2221A USB to I2C/UART protocol converters. It only
// builds and parses reports; it performs no I/O and keeps no state, so the
// same functions serve both the real transport and scripted tests.
//
// Every command and response is exactly one 64-byte report. Byte 0 carries
// the command code, byte 0 of a response echoes it, and byte 1 of a response
// carries the chip completion code (0 means success). Unused trailing bytes
// are zero on encode and ignored on decode.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
package protocol
