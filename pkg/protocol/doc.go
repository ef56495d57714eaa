// Package protocol encodes RSAS module commands and decodes their answers.
//
// The wire grammar is line based ASCII:
//
//	GET_INFO\n
//	GET_FIELDS\n
//	BASIC_SET operator_id=<v>|aircraft_id=<v>[|serial_number=<v>]|rid_id=<v>\n
//
// Modules answer GET_INFO and GET_FIELDS with a JSON object that may be
// surrounded by boot chatter or echo lines. Decoders look for the first '{'
// and the last '}' and parse what lies between.
//
// BASIC_SET answers are free text. Modules report success inconsistently, so
// Classify accepts every answer and only flags whether it looks successful.
//
// The package is pure: no I/O, no clocks.
package protocol
