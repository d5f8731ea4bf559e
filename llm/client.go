package llm

import (
	"context"
	"io"
)

// Client sends one chat completion request and returns its streaming response.
//
// Implementations hold no per-call state and must be safe for concurrent use.
// A transport that cannot be established fails with a BACKEND_UNAVAILABLE
// *types.Error.
type Client interface {
	Execute(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream is a finite, non-restartable sequence of raw response chunks.
// Next returns io.EOF once the stream is exhausted.
type Stream interface {
	Next() (string, error)
	Close() error
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req CompletionRequest) (Stream, error)

// Execute implements Client.
func (f ClientFunc) Execute(ctx context.Context, req CompletionRequest) (Stream, error) {
	return f(ctx, req)
}

// SliceStream is an in-memory Stream over fixed chunks.
type SliceStream struct {
	chunks []string
	pos    int
	err    error
}

// NewSliceStream returns a stream yielding chunks in order. If err is non-nil
// it is returned after the last chunk instead of io.EOF.
func NewSliceStream(chunks []string, err error) *SliceStream {
	return &SliceStream{chunks: chunks, err: err}
}

// Next implements Stream.
func (s *SliceStream) Next() (string, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close implements Stream.
func (s *SliceStream) Close() error { return nil }

// ReaderStream adapts an io.ReadCloser (typically an HTTP body) to Stream.
// Chunk boundaries follow the reader's Read calls, not line boundaries.
type ReaderStream struct {
	rc  io.ReadCloser
	buf []byte
}

// NewReaderStream wraps rc. bufSize <= 0 selects 4KiB.
func NewReaderStream(rc io.ReadCloser, bufSize int) *ReaderStream {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &ReaderStream{rc: rc, buf: make([]byte, bufSize)}
}

// Next implements Stream.
func (s *ReaderStream) Next() (string, error) {
	for {
		n, err := s.rc.Read(s.buf)
		if n > 0 {
			return string(s.buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Close implements Stream.
func (s *ReaderStream) Close() error { return s.rc.Close() }
