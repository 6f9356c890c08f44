package amigocloud

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
	"github.com/amigocloud/amigocloud-go/internal/common/uuid"
)

// DefaultFileField is the multipart field carrying the file content.
const DefaultFileField = "datafile"

// ProgressFunc is told how many bytes of total the server has accepted so far.
type ProgressFunc func(sent, total int64)

// UploadRequest describes one upload. It is read once at the start of Upload and never
// retained.
type UploadRequest struct {
	Source Source

	// SimpleURL receives the whole file in a single request when the source is smaller
	// than the configured simple upload limit. Leave empty to always chunk.
	SimpleURL string
	// ChunkedURL receives the chunks; ChunkedURL + "/complete" finalizes the upload.
	ChunkedURL string

	FileField    string // multipart field of the file, "datafile" when empty
	ChunkSize    int64  // bytes per chunk, the configured chunk size when 0
	ForceChunked bool   // chunk even when SimpleURL could be used

	// ExtraFields are sent with the simple upload and merged into the finalize body.
	ExtraFields map[string]string
	// ExtraFieldsOnChunks also sends ExtraFields as form fields of every chunk.
	ExtraFieldsOnChunks bool

	Progress ProgressFunc
}

type uploadSession struct {
	id          uuid.UUID
	totalSize   int64
	chunkSize   int64
	bytesSent   int64
	uploadID    string
	uploadIDRaw string
	checksum    hash.Hash
}

func (s *uploadSession) contentRange(n int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.bytesSent, s.bytesSent+n-1, s.totalSize)
}

// Upload sends the source of req to the server and returns the response of the last
// request. Small sources go to SimpleURL in one request; everything else is sent in
// sequential chunks to ChunkedURL and finalized with the MD5 of the content.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*Response, error) {
	if req.Source == nil {
		return nil, ErrInvalidUpload.Msg("no source")
	}
	if req.ChunkedURL == "" {
		return nil, ErrInvalidUpload.Msg("chunked upload URL is required")
	}
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = c.cfg.ChunkSize
	}
	if chunkSize < 0 {
		return nil, ErrInvalidUpload.Msg(fmt.Sprintf("invalid chunk size %d", chunkSize))
	}
	if req.FileField == "" {
		req.FileField = DefaultFileField
	}

	src, err := req.Source.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if req.SimpleURL != "" && !req.ForceChunked && src.size < c.cfg.SimpleUploadLimit {
		return c.simpleUpload(ctx, req, src)
	}
	return c.chunkedUpload(ctx, req, src, chunkSize)
}

func (c *Client) simpleUpload(ctx context.Context, req UploadRequest, src *openSource) (*Response, error) {
	l := c.logger.With().Str("file", src.name).Int64("size", src.size).Logger()
	l.Info().Str("url", req.SimpleURL).Msg("simple upload started")

	data, err := io.ReadAll(io.LimitReader(src.r, src.size))
	if err != nil {
		return nil, ErrSourceRead.MsgErr(fmt.Sprintf("unable to read %s", src.name), errors.Wrap(err, "read"))
	}
	if int64(len(data)) != src.size {
		return nil, ErrSourceSize.Msg(fmt.Sprintf("%s ended after %d of %d bytes", src.name, len(data), src.size))
	}

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   req.SimpleURL,
		Form:   req.ExtraFields,
		Files: []FilePart{{
			Field:       req.FileField,
			Filename:    src.name,
			ContentType: detectContentType(data),
			Reader:      bytes.NewReader(data),
		}},
	})
	if err != nil {
		return nil, err
	}
	if req.Progress != nil {
		req.Progress(src.size, src.size)
	}
	l.Info().Msg("simple upload complete")
	return resp, nil
}

func (c *Client) chunkedUpload(ctx context.Context, req UploadRequest, src *openSource, chunkSize int64) (*Response, error) {
	s := &uploadSession{
		id:        uuid.New(),
		totalSize: src.size,
		chunkSize: chunkSize,
		checksum:  md5.New(),
	}
	ctx = logtrace.WithSessionID(ctx, s.id.String())
	l := logtrace.Ctx(ctx, c.logger)
	l.Info().
		Str("file", src.name).
		Int64("size", s.totalSize).
		Int64("chunk_size", s.chunkSize).
		Str("url", req.ChunkedURL).
		Msg("chunked upload started")

	buf := make([]byte, min(s.chunkSize, s.totalSize))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := min(s.chunkSize, s.totalSize-s.bytesSent)
		chunk := buf[:n]
		if read, err := io.ReadFull(src.r, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrSourceSize.MsgErr(
					fmt.Sprintf("%s ended after %d of %d bytes", src.name, s.bytesSent+int64(read), s.totalSize), err)
			}
			return nil, ErrSourceRead.MsgErr(fmt.Sprintf("unable to read %s", src.name), errors.Wrap(err, "read"))
		}
		s.checksum.Write(chunk)

		resp, err := c.Do(ctx, Request{
			Method:  http.MethodPost,
			Path:    req.ChunkedURL,
			Headers: map[string]string{"Content-Range": s.contentRange(n)},
			Form:    chunkForm(s, req),
			Files: []FilePart{{
				Field:       req.FileField,
				Filename:    src.name,
				ContentType: "application/octet-stream",
				Reader:      bytes.NewReader(chunk),
			}},
		})
		if err != nil {
			l.Error().Err(err).Int64("offset", s.bytesSent).Msg("chunk rejected")
			return nil, err
		}

		if s.uploadID == "" {
			id := resp.Get("upload_id")
			if !id.Exists() || id.String() == "" {
				return nil, ErrMissingUploadID.Err().WithDetail(strings.TrimSpace(resp.String()))
			}
			s.uploadID = id.String()
			s.uploadIDRaw = id.Raw
			l.Debug().Str("upload_id", s.uploadID).Msg("upload id issued")
		}

		s.bytesSent += n
		l.Debug().Int64("sent", s.bytesSent).Int64("total", s.totalSize).Msg("chunk accepted")
		if req.Progress != nil {
			req.Progress(s.bytesSent, s.totalSize)
		}
		if s.bytesSent >= s.totalSize {
			break
		}
	}

	return c.finalize(ctx, req, s)
}

func chunkForm(s *uploadSession, req UploadRequest) map[string]string {
	form := make(map[string]string, len(req.ExtraFields)+1)
	if req.ExtraFieldsOnChunks {
		for k, v := range req.ExtraFields {
			form[k] = v
		}
	}
	if s.uploadID != "" {
		form["upload_id"] = s.uploadID
	} else {
		delete(form, "upload_id")
	}
	return form
}

func (c *Client) finalize(ctx context.Context, req UploadRequest, s *uploadSession) (*Response, error) {
	sum := hex.EncodeToString(s.checksum.Sum(nil))

	body, err := completeBody(s.uploadIDRaw, sum, req.ExtraFields)
	if err != nil {
		return nil, ErrInvalidUpload.MsgErr("unable to build finalize request", err)
	}
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, Path: completeURL(req.ChunkedURL), JSON: body})
	if err != nil {
		return nil, err
	}
	l := logtrace.Ctx(ctx, c.logger)
	l.Info().
		Str("upload_id", s.uploadID).
		Str("md5", sum).
		Int64("size", s.totalSize).
		Dur("elapsed", time.Since(uuid.Timestamp(s.id))).
		Msg("chunked upload complete")
	return resp, nil
}

// completeBody builds {"upload_id": ..., "md5": ..., extra...}. uploadIDRaw is the
// JSON value issued by the server, so a numeric id stays numeric.
func completeBody(uploadIDRaw, sum string, extra map[string]string) ([]byte, error) {
	body := []byte("{}")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		if body, err = sjson.SetBytes(body, escapeKey(k), extra[k]); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetRawBytes(body, "upload_id", []byte(uploadIDRaw)); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "md5", sum)
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`,
)

// escapeKey turns an object key into an sjson path addressing exactly that key.
func escapeKey(k string) string {
	k = keyEscaper.Replace(k)
	if k != "" && strings.Trim(k, "0123456789") == "" {
		return ":" + k
	}
	return k
}

// completeURL appends /complete to the path of a chunked upload URL.
func completeURL(chunkedURL string) string {
	base, query, hasQuery := strings.Cut(chunkedURL, "?")
	u := strings.TrimRight(base, "/") + "/complete"
	if hasQuery {
		u += "?" + query
	}
	return u
}

func detectContentType(data []byte) string {
	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
