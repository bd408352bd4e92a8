package model

// EmbeddingCache is a stored primary embedding keyed by space, task type and the
// sha256 of the embedded text.
type EmbeddingCache struct {
	Space       string    `json:"space"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
