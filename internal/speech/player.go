package speech

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Player consumes a synthesized audio stream. Play returns when the stream
// has been fully played or ctx is done.
type Player interface {
	Play(ctx context.Context, audio io.Reader, contentType string) error
}

// DiscardPlayer drains the stream. The server has no audio device; the
// telephony leg that would carry the audio is outside this service.
type DiscardPlayer struct{}

func (DiscardPlayer) Play(ctx context.Context, audio io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, ctxReader{ctx: ctx, r: audio})
	return err
}

// BufferPlayer keeps the last stream in memory.
type BufferPlayer struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	contentType string
}

func (p *BufferPlayer) Play(ctx context.Context, audio io.Reader, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Reset()
	p.contentType = contentType
	_, err := io.Copy(&p.buf, ctxReader{ctx: ctx, r: audio})
	return err
}

func (p *BufferPlayer) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

func (p *BufferPlayer) ContentType() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contentType
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
