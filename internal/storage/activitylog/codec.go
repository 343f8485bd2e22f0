package activitylog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

type wirePayload struct {
	ID          string `json:"id"`
	Timestamp   int64  `json:"ts"`
	DocKey      string `json:"doc"`
	Generation  uint64 `json:"gen,omitempty"`
	Description string `json:"desc,omitempty"`
	Digest      uint64 `json:"digest,omitempty"`
}

func encodeEntryFrame(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("activitylog: entry is nil")
	}
	switch e.OpType {
	case OpTypeSave, OpTypeRemove:
	default:
		return nil, ErrInvalidEntryType
	}
	if e.DocKey == "" {
		return nil, fmt.Errorf("activitylog: missing document key for op %s", e.OpType)
	}

	payload, err := json.Marshal(wirePayload{
		ID:          e.ID,
		Timestamp:   e.Timestamp,
		DocKey:      e.DocKey,
		Generation:  e.Generation,
		Description: e.Description,
		Digest:      e.Digest,
	})
	if err != nil {
		return nil, fmt.Errorf("activitylog: marshal payload: %w", err)
	}

	typeByte := []byte{byte(e.OpType)}
	crc := crc32.ChecksumIEEE(append(typeByte, payload...))

	// Length = CRC(4) + Type(1) + Payload.
	length := uint32(minFrameSize + len(payload))
	if length > maxFrameSize {
		return nil, fmt.Errorf("activitylog: entry too large (%d bytes)", length)
	}

	out := make([]byte, 0, 4+int(length))
	out = binary.BigEndian.AppendUint32(out, length)
	out = binary.BigEndian.AppendUint32(out, crc)
	out = append(out, typeByte...)
	out = append(out, payload...)
	return out, nil
}

func decodeEntryFrame(frame []byte) (*Entry, error) {
	// Frame layout: [crc32:4][type:1][payload...]
	if len(frame) < minFrameSize {
		return nil, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	typeByte := frame[4]
	payload := frame[5:]

	if crc32.ChecksumIEEE(frame[4:]) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	op := OpType(typeByte)
	switch op {
	case OpTypeSave, OpTypeRemove:
	default:
		return nil, ErrInvalidEntryType
	}

	var p wirePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedEntry, err)
	}

	return &Entry{
		ID:          p.ID,
		OpType:      op,
		Timestamp:   p.Timestamp,
		DocKey:      p.DocKey,
		Generation:  p.Generation,
		Description: p.Description,
		Digest:      p.Digest,
	}, nil
}
