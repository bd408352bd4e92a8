package model

type FragmentMetadata struct {
	SourceType    string `json:"source_type"`
	ContentLength int    `json:"content_length"`
}

// Fragment is one chunk of a document together with the vector it was embedded to.
// Space names the embedder that produced Embedding; vectors from different spaces
// are never compared.
type Fragment struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Ordinal    int              `json:"ordinal"`
	Content    string           `json:"content"`
	Embedding  []float32        `json:"-"`
	Space      string           `json:"space"`
	Dimension  int              `json:"dimension"`
	Metadata   FragmentMetadata `json:"metadata"`
	Ctime      int64            `json:"ctime"`
}
