package amigocloud

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Source is the content of an upload: either a PathSource or a StreamSource.
type Source interface {
	open() (*openSource, error)
}

// PathSource uploads the file at Path. The uploader opens it, takes its size from the
// file system and closes it when the upload ends, whatever the outcome.
type PathSource struct {
	Path string
}

// StreamSource uploads Size bytes read from Reader, which must be positioned at the
// start of the content. The reader belongs to the caller and is never closed. Name is
// the file name sent to the server.
type StreamSource struct {
	Name   string
	Reader io.Reader
	Size   int64
}

// FromPath returns a Source for the file at path.
func FromPath(path string) Source {
	return PathSource{Path: path}
}

// FromReader returns a Source reading size bytes from r.
func FromReader(name string, r io.Reader, size int64) Source {
	return StreamSource{Name: name, Reader: r, Size: size}
}

// FromFile returns a Source for an open file. The size is the distance between the
// current offset and the end of the file. The file is not closed by the uploader.
func FromFile(f *os.File) (Source, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, ErrSourceOpen.MsgErr(fmt.Sprintf("stat %s", f.Name()), err)
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ErrSourceOpen.MsgErr(fmt.Sprintf("seek %s", f.Name()), err)
	}
	return StreamSource{Name: filepath.Base(f.Name()), Reader: f, Size: fi.Size() - pos}, nil
}

type openSource struct {
	name   string
	r      io.Reader
	size   int64
	closer io.Closer
}

func (s *openSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var openFile = os.Open

func (s PathSource) open() (*openSource, error) {
	if s.Path == "" {
		return nil, ErrInvalidUpload.Msg("source path is empty")
	}
	f, err := openFile(s.Path)
	if err != nil {
		return nil, ErrSourceOpen.MsgErr(fmt.Sprintf("unable to open %s", s.Path), errors.Wrap(err, "open"))
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ErrSourceOpen.MsgErr(fmt.Sprintf("unable to stat %s", s.Path), errors.Wrap(err, "stat"))
	}
	if fi.IsDir() {
		f.Close()
		return nil, ErrSourceOpen.Msg(fmt.Sprintf("%s is a directory", s.Path))
	}
	return &openSource{name: filepath.Base(s.Path), r: f, size: fi.Size(), closer: f}, nil
}

func (s StreamSource) open() (*openSource, error) {
	if s.Reader == nil {
		return nil, ErrInvalidUpload.Msg("source reader is nil")
	}
	if s.Size < 0 {
		return nil, ErrInvalidUpload.Msg(fmt.Sprintf("negative source size %d", s.Size))
	}
	name := s.Name
	if name == "" {
		name = DefaultFileField
	}
	return &openSource{name: name, r: s.Reader, size: s.Size}, nil
}
