package toolloop

const (
	// DefaultSentinel marks a reply as the final answer.
	DefaultSentinel = "FINISHED"
	DefaultMaxTurns = 10
)

// LoopConfig bounds the tool loop.
type LoopConfig struct {
	MaxTurns int
	Sentinel string
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTurns: DefaultMaxTurns,
		Sentinel: DefaultSentinel,
	}
}

func (c LoopConfig) WithMaxTurns(maxTurns int) LoopConfig {
	c.MaxTurns = maxTurns
	return c
}

func (c LoopConfig) WithSentinel(sentinel string) LoopConfig {
	c.Sentinel = sentinel
	return c
}
