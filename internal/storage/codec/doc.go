// Package codec reads and writes one document backup directory.
//
// A backup directory holds a structural header and one raster payload per
// cel:
//
//	doc.hdr               [magic:4 "FINE"][version:2][len:4][json][blake2b-256:32]
//	img-LLLL-FFFFF.bin    one payload per cel, layer-major, lexicographically sortable
//
// Reading follows two paths. The structured path trusts the header and maps
// payloads back to their layer and frame. The raw path ignores the header,
// takes every payload in name order and lays them out either as consecutive
// frames of one layer or as one layer each. ReadDocument falls back to the
// raw path when the header is missing or invalid.
package codec
