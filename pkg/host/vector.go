package host

import (
	"fmt"
	"math"
)

// Vector3 is the framework's three-component vector.
type Vector3 struct {
	X, Y, Z float64
}

// V3 builds a vector.
func V3(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// Add returns v+o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v-o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v*s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vector3) Dot(o Vector3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean norm.
func (v Vector3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Distance returns |a-b|.
func Distance(a, b Vector3) float64 {
	return a.Sub(b).Length()
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
