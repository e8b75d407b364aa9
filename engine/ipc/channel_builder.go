package ipc

// channelConfig holds the settings shared by both ends of a channel.
type channelConfig struct {
	// name is the well-known region name.
	name string

	// dir is the directory holding region files on non-Windows platforms.
	dir string

	// retries is the number of immediate re-reads TryConsume makes after observing a write in
	// progress or a torn copy, before giving up for this frame.
	retries int

	// acknowledge enables the reader's consumerSequence advertisement.
	acknowledge bool

	// removeOnClose makes the writer delete the backing file when it closes. Off by default so
	// a restarted writer reuses the file a running reader still has mapped.
	removeOnClose bool
}

func defaultChannelConfig() channelConfig {
	return channelConfig{
		name:          MappingName,
		dir:           DefaultDirectory,
		retries:       3,
		acknowledge:   true,
		removeOnClose: false,
	}
}

// ChannelBuilderOption is a functional option for configuring a Reader or Writer.
type ChannelBuilderOption func(c *channelConfig)

// WithName sets the region name.
//
// Parameters:
//   - name: the well-known channel name (defaults to MappingName)
//
// Returns:
//   - ChannelBuilderOption: option function to apply
func WithName(name string) ChannelBuilderOption {
	return func(c *channelConfig) {
		c.name = name
	}
}

// WithDirectory sets the directory holding region files. Ignored on Windows.
//
// Parameters:
//   - dir: directory path (defaults to DefaultDirectory)
//
// Returns:
//   - ChannelBuilderOption: option function to apply
func WithDirectory(dir string) ChannelBuilderOption {
	return func(c *channelConfig) {
		c.dir = dir
	}
}

// WithRetries sets how many immediate re-reads TryConsume performs when it races a writer.
// Negative values are treated as zero.
//
// Parameters:
//   - retries: number of extra attempts per TryConsume call (default 3)
//
// Returns:
//   - ChannelBuilderOption: option function to apply
func WithRetries(retries int) ChannelBuilderOption {
	return func(c *channelConfig) {
		c.retries = max(retries, 0)
	}
}

// WithAcknowledge enables or disables the reader's geometry acknowledgment.
//
// Parameters:
//   - enabled: true to advertise consumed geometry sequences to the writer (default true)
//
// Returns:
//   - ChannelBuilderOption: option function to apply
func WithAcknowledge(enabled bool) ChannelBuilderOption {
	return func(c *channelConfig) {
		c.acknowledge = enabled
	}
}

// WithRemoveOnClose controls whether the writer deletes the backing file on Close.
//
// Parameters:
//   - remove: true to delete the region file when the writer closes (default false)
//
// Returns:
//   - ChannelBuilderOption: option function to apply
func WithRemoveOnClose(remove bool) ChannelBuilderOption {
	return func(c *channelConfig) {
		c.removeOnClose = remove
	}
}
