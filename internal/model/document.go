package model

type DocumentType string

const (
	DocumentTypeVideo DocumentType = "video"
	DocumentTypeImage DocumentType = "image"
	DocumentTypePDF   DocumentType = "pdf"
	DocumentTypeDoc   DocumentType = "doc"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeVideo, DocumentTypeImage, DocumentTypePDF, DocumentTypeDoc:
		return true
	}
	return false
}

// Textual reports whether documents of this type are chunked from extracted text.
func (t DocumentType) Textual() bool {
	return t == DocumentTypePDF || t == DocumentTypeDoc
}

type Document struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Type        DocumentType `json:"type"`
	Description string       `json:"description"`
	FileKey     string       `json:"file_key"`
	TextKey     string       `json:"text_key"`
	Link        string       `json:"link"`
	FileName    string       `json:"file_name"`
	MimeType    string       `json:"mime_type"`
	FileSize    int64        `json:"file_size"`
	Ctime       int64        `json:"ctime"`
	Mtime       int64        `json:"mtime"`
}
