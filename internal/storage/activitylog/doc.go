// Package activitylog is the append-only record of backup activity inside a
// session directory.
//
// File layout:
//
//	[magic:8 "SPRLOG\x00\x01"]
//	[len:4][crc32:4][type:1][json payload]   repeated
//
// len counts crc+type+payload, big endian. A crash can only damage the tail
// of the file; readers stop at the first torn or corrupted frame and keep
// everything before it. A writer reopening such a file truncates the torn
// tail before appending.
//
// Removal is expressed as a tombstone record; the log is rewritten without
// dead records once it grows past the compaction threshold.
package activitylog
