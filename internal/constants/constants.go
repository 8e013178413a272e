package constants

// Command buffer sizing
const (
	// DefaultCommandBufferSize is the command buffer size requested when the
	// caller does not specify one (64KB)
	DefaultCommandBufferSize = 64 * 1024

	// DefaultPatchListSize is the default number of patch list entries
	DefaultPatchListSize = 256

	// MaxCommandBufferSize is the largest command buffer a context accepts (1MB)
	MaxCommandBufferSize = 1 << 20

	// MaxPatchListSize is the largest patch list a context accepts
	MaxPatchListSize = 4096
)

// Surface limits
const (
	// MaxSurfaceDimension bounds width and height of a single surface
	MaxSurfaceDimension = 16384

	// PitchAlignment is the row alignment of tiled surfaces in bytes
	PitchAlignment = 128

	// LinearPitchAlignment is the row alignment of linear surfaces in bytes
	LinearPitchAlignment = 64
)

// Recycling
const (
	// DefaultRecycleDepth is the number of frames deferred surfaces are kept
	// before an epoch flush reclaims them
	DefaultRecycleDepth = 2
)
