// Package idgen produces 64-bit identifiers that are unique across every
// process sharing the same store.
//
// An identifier packs a zero sign bit, 31 bits of seconds elapsed since a
// custom epoch and 32 bits taken from a counter incremented atomically in the
// store:
//
//	0 | seconds since epoch (31) | sequence (32)
//
// The counter is never reset, so uniqueness rests on the store increment
// alone; the sequence part wraps after 2^32 calls. Identifiers from a later
// second always compare greater than those from an earlier one.
package idgen
