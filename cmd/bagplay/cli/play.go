package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/onkernel/bagctl/lib/bag"
	"github.com/onkernel/bagctl/lib/logger"
	"github.com/onkernel/bagctl/lib/player"
)

type playFlags struct {
	quiet     bool
	immediate bool
	pause     bool
	queue     int
	clock     bool
	hz        float64
	delay     float64
	rate      float64
	start     float64
	duration  float64
	loop      bool
	keepAlive bool

	profile string
	noKeys  bool
}

func (f *playFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress console output")
	fs.BoolVarP(&f.immediate, "immediate", "i", false, "Play back all messages without waiting")
	fs.BoolVar(&f.pause, "pause", false, "Start in paused mode")
	fs.IntVar(&f.queue, "queue", 0, "Use an outgoing queue of this size")
	fs.BoolVar(&f.clock, "clock", false, "Publish the clock time")
	fs.Float64Var(&f.hz, "hz", 0, "Publish the clock time at this frequency in Hz")
	fs.Float64Var(&f.delay, "delay", 0, "Sleep this many seconds after every advertise call")
	fs.Float64Var(&f.rate, "rate", 0, "Multiply the publish rate by this factor")
	fs.Float64Var(&f.start, "start", 0, "Start this many seconds into the bag")
	fs.Float64Var(&f.duration, "duration", 0, "Play only this many seconds from the bag")
	fs.BoolVarP(&f.loop, "loop", "l", false, "Loop playback")
	fs.BoolVarP(&f.keepAlive, "keep-alive", "k", false, "Keep alive past the end of the bag")
	fs.StringVar(&f.profile, "profile", "", "YAML or JSON playback profile; explicit flags override it")
	fs.BoolVar(&f.noKeys, "no-keys", false, "Do not forward keystrokes to rosbag")
}

// options merges the profile with the flags the user set explicitly.
func (f *playFlags) options(changed func(name string) bool) (player.Options, error) {
	var opts player.Options
	if f.profile != "" {
		var err error
		if opts, err = player.LoadOptions(f.profile); err != nil {
			return player.Options{}, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
		val  bool
	}{
		{"quiet", &opts.Quiet, f.quiet},
		{"immediate", &opts.Immediate, f.immediate},
		{"pause", &opts.StartPaused, f.pause},
		{"clock", &opts.PublishClock, f.clock},
		{"loop", &opts.Loop, f.loop},
		{"keep-alive", &opts.KeepAlive, f.keepAlive},
	}
	for _, b := range bools {
		if changed(b.name) {
			*b.dst = b.val
		}
	}

	if changed("queue") {
		opts.QueueSize = lo.ToPtr(f.queue)
	}
	floats := []struct {
		name string
		dst  **float64
		val  float64
	}{
		{"hz", &opts.ClockPublishFreq, f.hz},
		{"delay", &opts.Delay, f.delay},
		{"rate", &opts.PublishRateMultiplier, f.rate},
		{"start", &opts.StartTime, f.start},
		{"duration", &opts.Duration, f.duration},
	}
	for _, fl := range floats {
		if changed(fl.name) {
			*fl.dst = lo.ToPtr(fl.val)
		}
	}

	// the command waits itself so that keys can be forwarded meanwhile
	opts.Wait = false
	return opts, nil
}

func NewPlayCmd(deps *Dependencies) *cobra.Command {
	f := &playFlags{}

	cmd := &cobra.Command{
		Use:   "play [flags] <bag>...",
		Short: "Play one or more bag files",
		Long:  "Play bag files through `rosbag play`.\nWhen stdin is a terminal, space toggles pause, s steps while paused and q or Ctrl+C quits.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			keys := !f.noKeys && term.IsTerminal(int(os.Stdin.Fd()))
			return runPlay(cmd.Context(), deps, args, opts, keys)
		},
	}
	f.register(cmd)

	return cmd
}

func runPlay(ctx context.Context, deps *Dependencies, recordings []string, opts player.Options, keys bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := bag.InterruptContext(ctx)
	defer stop()
	ctx = logger.AddToContext(ctx, deps.Logger)

	p, err := player.New(bag.Files(recordings), deps.params())
	if err != nil {
		return err
	}

	return p.Use(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		if keys {
			// a pty keeps the child's output line discipline intact while our terminal is raw
			opts.Streams = bag.Streams{TTY: true, Stdout: os.Stdout}
		}
		if err := p.Play(ctx, opts); err != nil {
			return err
		}

		if keys {
			restore, err := rawTerminal(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
			}
			defer restore()
			go func() {
				_ = forwardKeys(ctx, os.Stdin, p, cancel)
			}()
		}

		return p.Wait(ctx)
	})
}
