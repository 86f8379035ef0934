package extract

// Tolerance in pixels when matching flow endpoints to shape boxes.
const matchTolerance = 25

// rect is an axis-aligned bounding box in document coordinates.
type rect struct {
	x, y, w, h float64
}

func (r rect) centerX() float64 { return r.x + r.w/2 }
func (r rect) centerY() float64 { return r.y + r.h/2 }

// contains reports whether the point lies inside the box.
func (r rect) contains(px, py float64) bool {
	return r.x <= px && px <= r.x+r.w && r.y <= py && py <= r.y+r.h
}

// near reports whether the point lies inside the box expanded by the match
// tolerance in all directions.
func (r rect) near(px, py float64) bool {
	t := float64(matchTolerance)
	return r.x-t <= px && px <= r.x+r.w+t && r.y-t <= py && py <= r.y+r.h+t
}

// centerDist2 returns the squared distance from the point to the box center.
func (r rect) centerDist2(px, py float64) float64 {
	dx := px - r.centerX()
	dy := py - r.centerY()
	return dx*dx + dy*dy
}
