package safety

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/armguard/internal/pose"
)

func radians(deg int) float64 {
	return float64(deg) * math.Pi / 180
}

// Reach is a planar two-link forward-kinematics estimate of how far the end
// effector sits from the base. Only the shoulder and elbow angles are used;
// the wrist link is a fixed offset along x.
func Reach(p pose.Pose, links Links) float64 {
	s := radians(p.Shoulder())
	se := s + radians(p.Elbow())

	upper := r2.Scale(links.Shoulder, r2.Vec{X: math.Cos(s), Y: math.Sin(s)})
	fore := r2.Scale(links.Elbow, r2.Vec{X: math.Cos(se), Y: math.Sin(se)})
	tip := r2.Add(r2.Add(upper, fore), r2.Vec{X: links.Wrist})

	return r2.Norm(tip)
}
