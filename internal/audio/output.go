package audio

// Output drives rendering: once started it pulls blocks from render at its
// own pace until closed.
type Output interface {
	Start(render RenderFunc) error
	Close() error
}

// Offline is an Output with no driver. The owner advances time by calling
// its render function directly, which makes playback deterministic in tests
// and batch tools.
type Offline struct{}

// Start implements Output.
func (Offline) Start(RenderFunc) error { return nil }

// Close implements Output.
func (Offline) Close() error { return nil }
