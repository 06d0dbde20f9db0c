package octree

const (
	ErrTypeOutOfBounds       = "out_of_bounds"
	ErrTypeDuplicateKey      = "duplicate_key"
	ErrTypeInseparablePoints = "inseparable_points"
)
