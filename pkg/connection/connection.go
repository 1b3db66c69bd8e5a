package connection

import (
	"context"
)

// Store is the subset of the FileMaker client API the ORM core relies on.
//
// Every method performs one blocking round trip. A vendor error is returned as a
// *StoreError; callers decide which codes are benign.
type Store interface {
	Find(ctx context.Context, req *FindRequest) (*Result, error)
	FindCompound(ctx context.Context, req *CompoundFindRequest) (*Result, error)
	Add(ctx context.Context, layout string, fields map[string]any) (*Result, error)
	// Edit changes the record addressed by recordID. A non-empty modificationID makes the
	// store reject the edit when the record was modified since it was read.
	Edit(ctx context.Context, layout, recordID, modificationID string, fields map[string]any) (*Result, error)
	Delete(ctx context.Context, layout, recordID string) (*Result, error)
}

// ContainerUploader stores binary content in a container field of an existing record.
// It returns the record's modification id after the upload.
type ContainerUploader interface {
	UploadContainer(ctx context.Context, layout, recordID, field, filename string, data []byte) (string, error)
}

// ContainerDownloader fetches the content a container URL points to.
type ContainerDownloader interface {
	DownloadContainer(ctx context.Context, url string) ([]byte, error)
}
