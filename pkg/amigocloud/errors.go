package amigocloud

import (
	"github.com/amigocloud/amigocloud-go/internal/common/apperrors"
	"github.com/amigocloud/amigocloud-go/internal/common/httpclient"
)

// ResponseError is the concrete error of a request answered with a non-2xx status.
// Retrieve it with errors.As; errors.Is(err, ErrRequestFailed) holds as well.
type ResponseError = httpclient.HTTPError

var (
	// ErrAmigoCloud is the root of every error kind returned by this package.
	ErrAmigoCloud = apperrors.New("amigocloud error")

	ErrRequestFailed      = ErrAmigoCloud.New("request failed")
	ErrNotAuthenticated   = ErrAmigoCloud.New("you must be logged in to start receiving websocket events")
	ErrSourceOpen         = ErrAmigoCloud.New("unable to open upload source")
	ErrSourceRead         = ErrAmigoCloud.New("unable to read upload source")
	ErrSourceSize         = ErrAmigoCloud.New("upload source is shorter than its declared size")
	ErrMissingUploadID    = ErrAmigoCloud.New("chunk response carries no upload_id")
	ErrInvalidUpload      = ErrAmigoCloud.New("invalid upload request")
	ErrWebsocketsDisabled = ErrAmigoCloud.New("websockets are disabled for this client")
	ErrUnexpectedResponse = ErrAmigoCloud.New("unexpected response")
	ErrCursorDone         = ErrAmigoCloud.New("no more results")
	ErrInvalidConfig      = ErrAmigoCloud.New("invalid client configuration")
)
