package pregen

// Plan is the tiling of generation windows covering a requested chunk radius
// around a center point. Windows are identified by their grid cell (dx, dz)
// in [0, StepDiameter) on both axes.
type Plan struct {
	// Window is the side of a single window, in chunks.
	Window int32
	// StepDiameter is the number of windows per axis.
	StepDiameter int32
	// MinChunkX and MinChunkZ are the anchor chunk coordinates of the grid's
	// (0, 0) window.
	MinChunkX, MinChunkZ int32
}

// PlanWindows computes the window grid needed to cover chunkRadius chunks in
// every direction around the block coordinate (centerX, centerZ), using
// square windows of the side passed.
//
// The grid is centered on the chunk containing the center point: with an odd
// number of windows per axis the middle window is anchored on that chunk,
// with an even number the chunk sits on the boundary between the two middle
// windows.
func PlanWindows(centerX, centerZ, chunkRadius, window int32) Plan {
	diameter := chunkRadius*2 + 1
	steps := (diameter + window - 1) / window
	if steps < 1 {
		steps = 1
	}

	// Arithmetic shift keeps floor semantics for negative block coordinates.
	centerChunkX := centerX >> 4
	centerChunkZ := centerZ >> 4
	half := steps / 2

	return Plan{
		Window:       window,
		StepDiameter: steps,
		MinChunkX:    centerChunkX - half*window,
		MinChunkZ:    centerChunkZ - half*window,
	}
}

// Total returns the number of windows in the plan.
func (p Plan) Total() int {
	return int(p.StepDiameter) * int(p.StepDiameter)
}

// Anchor returns the spawn anchor block coordinate of the window at grid cell
// (dx, dz). The +8 centers the anchor within its chunk.
func (p Plan) Anchor(dx, dz int32) (x, z int32) {
	return (p.MinChunkX+dx*p.Window)*16 + 8, (p.MinChunkZ+dz*p.Window)*16 + 8
}
