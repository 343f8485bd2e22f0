// Package imagecodec serializes single raster images for the backup store.
//
// Wire format of the Raw codec (little endian):
//
//	[magic:4 "FINE"][format:1][width:4][height:4][rawLen:4][zstd(pixels)]
//
// Encoding is deterministic: the same image always produces the same bytes,
// which lets callers compare payloads and skip unchanged writes.
package imagecodec
