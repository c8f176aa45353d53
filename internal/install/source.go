package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/s3io"
	"github.com/studio1767/ctrmgr/internal/transport"
)

// Stream is an open install source read front to back.
type Stream interface {
	io.Reader
	io.Closer
	Size() (uint64, error)
	// Name suggests a file name for the content.
	Name() string
}

// Source opens a stream. Resumable sources can be reopened at an offset,
// which lets a paused network download drop its connection.
type Source interface {
	String() string
	Open(ctx context.Context, offset uint64) (Stream, error)
	Resumable() bool
}

// Resolver turns install locations into sources.
type Resolver struct {
	Storage platform.Storage
	HTTP    *transport.Client
	S3      s3io.Client
}

// Resolve understands http(s) URLs, s3://<key>, sd:/path, nand:/path and
// host file paths.
func (r *Resolver) Resolve(location string) (Source, error) {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if r.HTTP == nil {
			return nil, errors.New("no http client configured")
		}
		return &URLSource{Client: r.HTTP, URL: location}, nil

	case strings.HasPrefix(lower, "s3://"):
		if r.S3 == nil {
			return nil, errors.New("no s3 bucket configured")
		}
		return &ObjectSource{Client: r.S3, Key: location[len("s3://"):]}, nil

	case strings.HasPrefix(lower, "sd:"), strings.HasPrefix(lower, "nand:"):
		if r.Storage == nil {
			return nil, errors.New("no console storage configured")
		}
		archive := platform.SD
		if strings.HasPrefix(lower, "nand:") {
			archive = platform.NAND
		}
		_, p, _ := strings.Cut(location, ":")
		return &FileSource{Storage: r.Storage, Archive: archive, Path: p}, nil
	}
	return &HostSource{Path: location}, nil
}

// FileSource is a file on a console archive.
type FileSource struct {
	Storage platform.Storage
	Archive platform.Archive
	Path    string
}

func (s *FileSource) String() string {
	return fmt.Sprintf("%s:%s", s.Archive, s.Path)
}

func (s *FileSource) Resumable() bool { return false }

func (s *FileSource) Open(ctx context.Context, offset uint64) (Stream, error) {
	f, err := s.Storage.Open(s.Archive, s.Path)
	if err != nil {
		return nil, err
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileStream{
		Reader: io.NewSectionReader(f, int64(offset), int64(size-offset)),
		closer: f,
		size:   size,
		name:   path.Base(s.Path),
	}, nil
}

// HostSource is a file on the host file system.
type HostSource struct {
	Path string
}

func (s *HostSource) String() string { return s.Path }

func (s *HostSource) Resumable() bool { return false }

func (s *HostSource) Open(ctx context.Context, offset uint64) (Stream, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &fileStream{
		Reader: f,
		closer: f,
		size:   uint64(info.Size()),
		name:   filepath.Base(s.Path),
	}, nil
}

type fileStream struct {
	io.Reader
	closer io.Closer
	size   uint64
	name   string
}

func (f *fileStream) Size() (uint64, error) { return f.size, nil }
func (f *fileStream) Name() string          { return f.name }
func (f *fileStream) Close() error          { return f.closer.Close() }

// URLSource downloads over HTTP.
type URLSource struct {
	Client *transport.Client
	URL    string
}

func (s *URLSource) String() string { return s.URL }

func (s *URLSource) Resumable() bool { return true }

func (s *URLSource) Open(ctx context.Context, offset uint64) (Stream, error) {
	resp, err := s.Client.Open(ctx, s.URL, int64(offset))
	if err != nil {
		return nil, err
	}
	return &urlStream{resp}, nil
}

type urlStream struct {
	*transport.Response
}

func (u *urlStream) Name() string {
	return u.SuggestedName()
}

// ObjectSource reads an object from the remote archive.
type ObjectSource struct {
	Client s3io.Client
	Key    string
}

func (s *ObjectSource) String() string { return "s3://" + s.Key }

func (s *ObjectSource) Resumable() bool { return false }

func (s *ObjectSource) Open(ctx context.Context, offset uint64) (Stream, error) {
	if offset > 0 {
		return nil, fmt.Errorf("%s: cannot resume at %d", s, offset)
	}
	rd, err := s.Client.Open(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	return &objectStream{rd}, nil
}

type objectStream struct {
	*s3io.Reader
}

func (o *objectStream) Size() (uint64, error) {
	size, err := o.Reader.Size()
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

// sequential adapts a stream to the engine's offset addressed reads. The
// engine only ever asks for the next bytes, so offsets are checked rather
// than sought.
type sequential struct {
	stream Stream
	pos    uint64
	size   uint64
}

func (s *sequential) Size() (uint64, error) {
	return s.size, nil
}

// ReadAt fills p unless the stream ends first; the first block has to be
// whole for the container to be sniffed.
func (s *sequential) ReadAt(p []byte, off int64) (int, error) {
	if uint64(off) != s.pos {
		return 0, fmt.Errorf("read at %d, stream is at %d", off, s.pos)
	}
	n, err := io.ReadFull(s.stream, p)
	s.pos += uint64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (s *sequential) Close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}
