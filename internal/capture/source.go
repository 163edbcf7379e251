package capture

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrReadTimeout is returned when the device does not deliver a frame in time.
	ErrReadTimeout = errors.New("frame read timed out")

	// ErrReadPending is returned while a read that outlived its timeout is
	// still waiting on the device.
	ErrReadPending = errors.New("previous frame read still pending")
)

// FrameSource hands out frames one at a time. The caller owns each returned
// Mat and must close it. Close drops any read still in flight.
type FrameSource interface {
	Next(ctx context.Context) (*gocv.Mat, error)
	Close() error
}

// Puller pulls frames from a Camera, bounding each read by a timeout so a
// stalled device cannot hang the caller. At most one read is outstanding:
// after a timeout, Next reports ErrReadPending until the device answers.
// A Puller is not safe for concurrent use.
type Puller struct {
	camera  Camera
	timeout time.Duration
	pending chan readResult
}

// NewPuller wraps camera. A timeout of zero or less waits indefinitely.
func NewPuller(camera Camera, timeout time.Duration) *Puller {
	return &Puller{camera: camera, timeout: timeout}
}

type readResult struct {
	frame *gocv.Mat
	err   error
}

// Next reads one frame. A frame that arrives after its read gave up is
// stale and is closed rather than returned.
func (p *Puller) Next(ctx context.Context) (*gocv.Mat, error) {
	if p.pending != nil {
		select {
		case r := <-p.pending:
			p.pending = nil
			closeResult(r)
		default:
			return nil, ErrReadPending
		}
	}

	if p.timeout <= 0 {
		return p.camera.ReadFrame()
	}

	ch := make(chan readResult, 1)
	go func() {
		frame, err := p.camera.ReadFrame()
		ch <- readResult{frame: frame, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-timer.C:
		p.pending = ch
		return nil, ErrReadTimeout
	case <-ctx.Done():
		p.pending = ch
		return nil, ctx.Err()
	}
}

// Pending reports whether a read is still waiting on the device.
func (p *Puller) Pending() bool {
	return p.pending != nil
}

// Close hands any outstanding read to a goroutine that closes its frame.
func (p *Puller) Close() error {
	if p.pending != nil {
		go discard(p.pending)
		p.pending = nil
	}
	return nil
}

func discard(ch <-chan readResult) {
	closeResult(<-ch)
}

func closeResult(r readResult) {
	if r.frame != nil {
		r.frame.Close()
	}
}
