package translator

// history is a bounded list of entries, newest first.
type history struct {
	limit   int
	entries []HistoryEntry
}

func newHistory(limit int) *history {
	return &history{limit: limit, entries: make([]HistoryEntry, 0, limit)}
}

// push prepends e and evicts the oldest entry beyond the limit.
func (h *history) push(e HistoryEntry) {
	if len(h.entries) == h.limit {
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, HistoryEntry{})
	copy(h.entries[1:], h.entries)
	h.entries[0] = e
}

func (h *history) find(id string) (HistoryEntry, bool) {
	for _, e := range h.entries {
		if e.ID == id {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

func (h *history) list() []HistoryEntry {
	return append([]HistoryEntry(nil), h.entries...)
}

func (h *history) reset() { h.entries = h.entries[:0] }
