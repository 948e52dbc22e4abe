package model

const (
	KindText  = "text"
	KindCode  = "code"
	KindSheet = "sheet"
	KindImage = "image"
)

const (
	VersionAutosave = "autosave"
	VersionExplicit = "explicit"
	VersionAIUpdate = "ai_update"
)

// Document is one immutable snapshot of a versioned document. (ID, Ctime)
// identifies the row; the current version of a document is the row with the
// largest Ctime for its ID. Ctime is unix milliseconds so rapid consecutive
// saves still order.
type Document struct {
	ID          string `json:"id"`
	Ctime       int64  `json:"created_at"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Kind        string `json:"kind"`
	OwnerID     string `json:"owner_id"`
	Mtime       int64  `json:"updated_at"`
	IsAutosave  bool   `json:"is_autosave"`
	VersionType string `json:"version_type"`
}

func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindCode, KindSheet, KindImage:
		return true
	}
	return false
}
