package activitylog

// Live folds entries into the latest save per document. Documents whose last
// record is a tombstone are absent from the result.
func Live(entries []*Entry) map[string]*Entry {
	out := make(map[string]*Entry)
	for _, e := range entries {
		switch e.OpType {
		case OpTypeSave:
			out[e.DocKey] = e
		case OpTypeRemove:
			delete(out, e.DocKey)
		}
	}
	return out
}
