package player

import (
	"context"
	"fmt"

	"github.com/onkernel/bagctl/lib/bag"
)

// Invocation is the command prefix of the playback tool.
var Invocation = []string{"rosbag", "play"}

const (
	// rosbag treats the same key as a pause/resume toggle
	keyTogglePause = " "
	keyStep        = "s"
)

// Player plays a set of bag files through `rosbag play`.
type Player struct {
	*bag.Bag
}

// New returns a Player for the recordings in src. No process is started.
func New(src bag.Source, params bag.Params) (*Player, error) {
	b, err := bag.New(src, params)
	if err != nil {
		return nil, err
	}
	return &Player{Bag: b}, nil
}

// Factory creates players that share launch parameters.
type Factory func(src bag.Source) (*Player, error)

// NewFactory returns a Factory using params for every Player it creates.
func NewFactory(params bag.Params) Factory {
	return func(src bag.Source) (*Player, error) {
		return New(src, params)
	}
}

// BuildArgs returns the full argument vector Play spawns for opts.
func (p *Player) BuildArgs(opts Options) []string {
	args := append([]string{}, Invocation...)
	args = append(args, p.Recordings().Files()...)
	return append(args, opts.flags()...)
}

// Play starts rosbag with opts. With opts.Wait it blocks until playback ends.
func (p *Player) Play(ctx context.Context, opts Options) error {
	if err := p.Start(ctx, p.BuildArgs(opts), opts.Streams); err != nil {
		return err
	}
	if opts.Wait {
		if err := p.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for playback: %w", err)
		}
	}
	return nil
}

// Pause pauses playback. It toggles, so it is the same keystroke as Resume.
func (p *Player) Pause() error {
	return p.Send(keyTogglePause)
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	return p.Send(keyTogglePause)
}

// Step publishes the next message while paused.
func (p *Player) Step() error {
	return p.Send(keyStep)
}
