package player

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/ghodss/yaml"

	"github.com/onkernel/bagctl/lib/bag"
)

// Options configures a single `rosbag play` invocation. Booleans add their flag
// only when true; numeric fields add theirs whenever they are non-nil.
// Durations and times are in seconds.
type Options struct {
	// Quiet suppresses console output (-q).
	Quiet bool `json:"quiet,omitempty"`
	// Immediate plays back all messages without waiting (-i).
	Immediate bool `json:"immediate,omitempty"`
	// StartPaused starts in paused mode (--pause).
	StartPaused bool `json:"start_paused,omitempty"`
	// QueueSize sets the outgoing queue size (--queue).
	QueueSize *int `json:"queue_size,omitempty"`
	// PublishClock publishes the clock time (--clock).
	PublishClock bool `json:"publish_clock,omitempty"`
	// ClockPublishFreq is the clock publishing frequency in Hz (--hz).
	ClockPublishFreq *float64 `json:"clock_publish_freq,omitempty"`
	// Delay is slept after every advertise call (--delay).
	Delay *float64 `json:"delay,omitempty"`
	// PublishRateMultiplier scales the publish rate (--rate).
	PublishRateMultiplier *float64 `json:"publish_rate_multiplier,omitempty"`
	// StartTime is the offset into the bag at which to start (--start).
	StartTime *float64 `json:"start_time,omitempty"`
	// Duration limits how much of the bag is played (--duration).
	Duration *float64 `json:"duration,omitempty"`
	// Loop loops playback (-l).
	Loop bool `json:"loop,omitempty"`
	// KeepAlive keeps the player alive past the end of the bag (-k).
	KeepAlive bool `json:"keep_alive,omitempty"`

	// Wait blocks Play until the process exits.
	Wait bool `json:"wait,omitempty"`

	// Streams redirects the child's standard I/O.
	Streams bag.Streams `json:"-"`
}

// flags renders opts as rosbag flags. The order is fixed.
func (o Options) flags() []string {
	var args []string
	if o.Quiet {
		args = append(args, "-q")
	}
	if o.Immediate {
		args = append(args, "-i")
	}
	if o.StartPaused {
		args = append(args, "--pause")
	}
	if o.QueueSize != nil {
		args = append(args, fmt.Sprintf("--queue=%d", *o.QueueSize))
	}
	if o.PublishClock {
		args = append(args, "--clock")
	}
	args = appendFloat(args, "hz", o.ClockPublishFreq)
	args = appendFloat(args, "delay", o.Delay)
	args = appendFloat(args, "rate", o.PublishRateMultiplier)
	args = appendFloat(args, "start", o.StartTime)
	args = appendFloat(args, "duration", o.Duration)
	if o.Loop {
		args = append(args, "-l")
	}
	if o.KeepAlive {
		args = append(args, "-k")
	}
	return args
}

func appendFloat(args []string, name string, v *float64) []string {
	if v == nil {
		return args
	}
	return append(args, "--"+name+"="+formatFloat(*v))
}

// formatFloat renders v the way rosbag's own option parser prints floats:
// integral values keep a ".0", very small or large values use an exponent.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) {
		s += ".0"
	}
	return s
}

// LoadOptions reads a playback profile. YAML and JSON are both accepted and
// use the same keys as the HTTP API.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read profile: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return opts, nil
}
