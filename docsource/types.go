package docsource

import "context"

// Metadata is the current platform-side state of a document, as returned
// by the document platform's metadata endpoint.
type Metadata struct {
	Title            string
	OwnerID          string
	LastModifiedUser string
	LastModifiedTime int64 // epoch seconds
}

// MetadataFetcher returns current metadata for a document, or nil when the
// platform has no record of it.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, docToken, docType string) (*Metadata, error)
}

// ContentFetcher downloads the full plain-text content of a document.
// An empty string with a nil error means the document exists but is empty.
type ContentFetcher interface {
	FetchContent(ctx context.Context, docToken, docType string) (string, error)
}

// Notifier delivers a change announcement to a chat destination. The actual
// card rendering and send mechanics live in the chat-platform client.
type Notifier interface {
	Notify(ctx context.Context, chatID string, title, content string) error
}
