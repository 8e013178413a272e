package mediadrv

import "github.com/ehrlich-b/go-mediadrv/internal/constants"

// Re-export constants for public API
const (
	DefaultCommandBufferSize = constants.DefaultCommandBufferSize
	DefaultPatchListSize     = constants.DefaultPatchListSize
	MaxCommandBufferSize     = constants.MaxCommandBufferSize
	MaxPatchListSize         = constants.MaxPatchListSize
	MaxSurfaceDimension      = constants.MaxSurfaceDimension
	DefaultRecycleDepth      = constants.DefaultRecycleDepth
)
