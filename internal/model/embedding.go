package model

// Embedding is the authoritative vector for one item. An empty Vector marks an
// item that was attempted but could not be embedded.
type Embedding struct {
	ItemID  int64     `json:"item_id"`
	Vector  []float32 `json:"vector"`
	Version int       `json:"version"`
	Mtime   int64     `json:"mtime"`
}

func (e Embedding) IsEmpty() bool {
	return len(e.Vector) == 0
}

type QueryResult struct {
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score"`
}
