package audio

import (
	"context"
	"io"
	"sync"
	"time"
)

type PlayerConfig struct {
	// Chunk is how much audio is written per step. Defaults to 100ms.
	Chunk time.Duration
	// Realtime paces writes to the playback rate. Off, the sink is fed as fast as it accepts.
	Realtime bool
}

// Player streams PCM into a sink with at most one active playback. Starting a new
// playback stops the previous one first.
type Player struct {
	cfg PlayerConfig

	mu     sync.Mutex
	active *playback
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Chunk <= 0 {
		cfg.Chunk = 100 * time.Millisecond
	}
	return &Player{cfg: cfg}
}

// Play starts streaming pcm into sink and returns immediately. onDone (optional)
// receives nil at natural end or the sink's write error. It is never called for a
// playback ended by Stop or by a newer Play.
func (p *Player) Play(ctx context.Context, pcm []byte, sink io.Writer, onDone func(error)) {
	pctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel, done: make(chan struct{})}

	// Swap and cancel in one critical section so concurrent Plays cannot both
	// end up running.
	p.mu.Lock()
	prev := p.active
	p.active = pb
	if prev != nil {
		prev.cancel()
	}
	p.mu.Unlock()
	if prev != nil {
		<-prev.done
	}

	go p.run(pctx, pb, pcm, sink, onDone)
}

func (p *Player) run(ctx context.Context, pb *playback, pcm []byte, sink io.Writer, onDone func(error)) {
	defer close(pb.done)
	defer pb.cancel()

	step := int(p.cfg.Chunk.Seconds()*float64(byteRate)) / bytesPerFrame * bytesPerFrame
	if step < bytesPerFrame {
		step = bytesPerFrame
	}

	var err error
	for off := 0; off < len(pcm); off += step {
		if ctx.Err() != nil {
			break
		}
		end := min(off+step, len(pcm))
		if _, err = sink.Write(pcm[off:end]); err != nil {
			break
		}
		if p.cfg.Realtime {
			t := time.NewTimer(Duration(pcm[off:end]))
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	p.mu.Lock()
	current := p.active == pb
	if current {
		p.active = nil
	}
	p.mu.Unlock()

	// Stopped playbacks are no longer current; a parent context cancellation is not a stop.
	if current && onDone != nil {
		if err == nil {
			err = ctx.Err()
		}
		onDone(err)
	}
}

// Stop ends the active playback and returns once its goroutine has exited.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.active
	p.active = nil
	p.mu.Unlock()
	if pb == nil {
		return
	}
	pb.cancel()
	<-pb.done
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}
