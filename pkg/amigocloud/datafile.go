package amigocloud

import (
	"context"
	"fmt"
)

// DatafileOptions tunes UploadDatafile.
type DatafileOptions struct {
	ChunkSize    int64
	ForceChunked bool
	Progress     ProgressFunc
}

// UploadDatafile uploads a data file into a project, where the server turns it into one
// or more datasets. owner is the id of the user owning the project.
func (c *Client) UploadDatafile(ctx context.Context, owner, project string, src Source, opts DatafileOptions) (*Response, error) {
	if owner == "" || project == "" {
		return nil, ErrInvalidUpload.Msg("owner and project are required")
	}
	base := fmt.Sprintf("users/%s/projects/%s/datasets", owner, project)
	return c.Upload(ctx, UploadRequest{
		Source:       src,
		SimpleURL:    base + "/upload",
		ChunkedURL:   base + "/chunked_upload",
		FileField:    DefaultFileField,
		ChunkSize:    opts.ChunkSize,
		ForceChunked: opts.ForceChunked,
		Progress:     opts.Progress,
	})
}
