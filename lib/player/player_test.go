package player

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/bagctl/lib/bag"
	"github.com/onkernel/bagctl/lib/bag/bagtest"
)

func mustPlayer(t *testing.T, src bag.Source) *Player {
	t.Helper()
	p, err := New(src, bag.Params{})
	require.NoError(t, err)
	return p
}

func TestBuildArgsScenarios(t *testing.T) {
	t.Parallel()

	p := mustPlayer(t, bag.Files{"a.bag", "b.bag"})
	require.Equal(t, []string{"rosbag", "play", "a.bag", "b.bag"}, p.BuildArgs(Options{}))

	p = mustPlayer(t, bag.File("a.bag"))
	require.Equal(t,
		[]string{"rosbag", "play", "a.bag", "--queue=50", "-l"},
		p.BuildArgs(Options{QueueSize: lo.ToPtr(50), Loop: true}),
	)
}

func TestBooleanFlags(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		set  func(o *Options)
		flag string
	}{
		{"quiet", func(o *Options) { o.Quiet = true }, "-q"},
		{"immediate", func(o *Options) { o.Immediate = true }, "-i"},
		{"start paused", func(o *Options) { o.StartPaused = true }, "--pause"},
		{"publish clock", func(o *Options) { o.PublishClock = true }, "--clock"},
		{"loop", func(o *Options) { o.Loop = true }, "-l"},
		{"keep alive", func(o *Options) { o.KeepAlive = true }, "-k"},
	}
	p := mustPlayer(t, bag.File("a.bag"))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var opts Options
			require.Equal(t, []string{"rosbag", "play", "a.bag"}, p.BuildArgs(opts), "false adds nothing")
			tc.set(&opts)
			require.Equal(t, []string{"rosbag", "play", "a.bag", tc.flag}, p.BuildArgs(opts))
		})
	}
}

func TestNumericFlags(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		opts Options
		flag string
	}{
		{"queue size", Options{QueueSize: lo.ToPtr(5)}, "--queue=5"},
		{"zero queue size", Options{QueueSize: lo.ToPtr(0)}, "--queue=0"},
		{"negative queue size", Options{QueueSize: lo.ToPtr(-1)}, "--queue=-1"},
		{"clock frequency", Options{ClockPublishFreq: lo.ToPtr(30.0)}, "--hz=30.0"},
		{"delay", Options{Delay: lo.ToPtr(0.5)}, "--delay=0.5"},
		{"zero delay", Options{Delay: lo.ToPtr(0.0)}, "--delay=0.0"},
		{"rate", Options{PublishRateMultiplier: lo.ToPtr(2.0)}, "--rate=2.0"},
		{"start", Options{StartTime: lo.ToPtr(12.25)}, "--start=12.25"},
		{"negative start", Options{StartTime: lo.ToPtr(-3.0)}, "--start=-3.0"},
		{"duration", Options{Duration: lo.ToPtr(60.0)}, "--duration=60.0"},
	}
	p := mustPlayer(t, bag.File("a.bag"))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, []string{"rosbag", "play", "a.bag", tc.flag}, p.BuildArgs(tc.opts))
		})
	}
}

func TestFlagOrder(t *testing.T) {
	t.Parallel()
	opts := Options{
		Quiet:                 true,
		Immediate:             true,
		StartPaused:           true,
		QueueSize:             lo.ToPtr(100),
		PublishClock:          true,
		ClockPublishFreq:      lo.ToPtr(100.0),
		Delay:                 lo.ToPtr(0.2),
		PublishRateMultiplier: lo.ToPtr(0.5),
		StartTime:             lo.ToPtr(1.0),
		Duration:              lo.ToPtr(10.0),
		Loop:                  true,
		KeepAlive:             true,
		Wait:                  true,
	}
	want := []string{
		"rosbag", "play", "x.bag", "y.bag",
		"-q", "-i", "--pause", "--queue=100", "--clock", "--hz=100.0",
		"--delay=0.2", "--rate=0.5", "--start=1.0", "--duration=10.0", "-l", "-k",
	}
	require.Equal(t, want, mustPlayer(t, bag.Files{"x.bag", "y.bag"}).BuildArgs(opts))
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()
	// computed at run time; a constant expression would fold to exactly 0.3
	a, b := 0.1, 0.2
	testCases := []struct {
		in   float64
		want string
	}{
		{30, "30.0"},
		{0.5, "0.5"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{-2.5, "-2.5"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.5e16, "1.5e+16"},
		{1e-5, "1e-05"},
		{0.0001, "0.0001"},
		{a + b, "0.30000000000000004"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, formatFloat(tc.in), "formatFloat(%v)", tc.in)
	}
}

func TestControlsFailWithoutChild(t *testing.T) {
	t.Parallel()
	p := mustPlayer(t, bag.File("a.bag"))
	for _, fn := range []func() error{p.Pause, p.Resume, p.Step} {
		err := fn()
		var nre *bag.NotRunningError
		require.ErrorAs(t, err, &nre)
		require.Equal(t, "talk to", nre.Action)
	}
}

func newMockPlayer(t *testing.T, src bag.Source, env ...string) *Player {
	t.Helper()
	p, err := NewFactory(bag.Params{
		BinaryPath:      bagtest.MockRosbag(t),
		StopGracePeriod: lo.ToPtr(time.Second),
		ExitFlushDelay:  lo.ToPtr(time.Duration(0)),
		Env:             env,
	})(src)
	require.NoError(t, err)
	t.Cleanup(func() {
		if p.IsRunning() {
			_ = p.Stop(context.Background())
		}
	})
	return p
}

func TestPlaySpawnsArgumentVector(t *testing.T) {
	p := newMockPlayer(t, bag.Files{"a.bag", "b.bag"})
	require.NoError(t, p.Play(context.Background(), Options{}))
	require.True(t, p.IsRunning())
	require.Equal(t, []string{"rosbag", "play", "a.bag", "b.bag"}, p.Bag.Args())
}

func TestPlayInteractiveCommands(t *testing.T) {
	stdinFile := filepath.Join(t.TempDir(), "stdin")
	p := newMockPlayer(t, bag.File("a.bag"), bagtest.EnvStdinFile+"="+stdinFile)
	ctx := context.Background()

	require.NoError(t, p.Play(ctx, Options{StartPaused: true}))
	require.NoError(t, p.Pause())
	require.Eventually(t, func() bool { return bagtest.ReadFile(stdinFile) == " " }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Resume())
	require.Eventually(t, func() bool { return bagtest.ReadFile(stdinFile) == "  " }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Step())
	require.Eventually(t, func() bool { return bagtest.ReadFile(stdinFile) == "  s" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(ctx))
	require.False(t, p.IsRunning())
}

func TestPlayWaits(t *testing.T) {
	p := newMockPlayer(t, bag.File("a.bag"), bagtest.EnvExitAfter+"=0.1")
	require.NoError(t, p.Play(context.Background(), Options{Wait: true}))
	require.False(t, p.IsRunning())
	require.Equal(t, bag.StateExited, p.State())
}

func TestPlayWaitReportsFailure(t *testing.T) {
	p := newMockPlayer(t, bag.File("a.bag"), bagtest.EnvExitAfter+"=0", bagtest.EnvExitCode+"=2")
	err := p.Play(context.Background(), Options{Wait: true})
	require.ErrorContains(t, err, "waiting for playback")
	code, ok := p.ExitCode()
	require.True(t, ok)
	require.Equal(t, 2, code)
}

func TestLoadOptions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
quiet: true
queue_size: 50
clock_publish_freq: 30
publish_rate_multiplier: 0.5
loop: true
`), 0o644))
	opts, err := LoadOptions(yamlPath)
	require.NoError(t, err)
	require.Equal(t, Options{
		Quiet:                 true,
		QueueSize:             lo.ToPtr(50),
		ClockPublishFreq:      lo.ToPtr(30.0),
		PublishRateMultiplier: lo.ToPtr(0.5),
		Loop:                  true,
	}, opts)

	jsonPath := filepath.Join(dir, "profile.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"start_paused": true, "duration": 0}`), 0o644))
	opts, err = LoadOptions(jsonPath)
	require.NoError(t, err)
	require.True(t, opts.StartPaused)
	require.Equal(t, lo.ToPtr(0.0), opts.Duration)

	_, err = LoadOptions(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("queue_size: lots\n"), 0o644))
	_, err = LoadOptions(badPath)
	require.Error(t, err)
}
