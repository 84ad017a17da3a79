// Package geo implements great-circle distance and radius filtering over spherical caps.
package geo

import (
	"iter"
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used for every distance computation.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinate is within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Located is anything with a position on the globe.
type Located interface {
	Location() Point
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the haversine distance between a and b in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// unit returns the point as a unit vector in earth-centered coordinates.
func unit(p Point) [3]float64 {
	lat, lng := toRad(p.Lat), toRad(p.Lng)
	return [3]float64{
		math.Cos(lat) * math.Cos(lng),
		math.Cos(lat) * math.Sin(lng),
		math.Sin(lat),
	}
}

// Cap is the set of points within an angular radius of a center.
type Cap struct {
	center Point
	axis   [3]float64
	angle  float64
	minDot float64
}

// NewCap builds a cap of radiusKm around center. Negative radii yield a cap holding only the center.
func NewCap(center Point, radiusKm float64) Cap {
	angle := math.Max(radiusKm, 0) / EarthRadiusKm
	return Cap{
		center: center,
		axis:   unit(center),
		angle:  angle,
		minDot: math.Cos(math.Min(angle, math.Pi)),
	}
}

// Center returns the cap center.
func (c Cap) Center() Point { return c.center }

// Full reports whether the cap covers the whole sphere.
func (c Cap) Full() bool { return c.angle >= math.Pi }

// Contains reports whether p lies inside the cap, boundary included.
func (c Cap) Contains(p Point) bool {
	if c.Full() {
		return true
	}
	v := unit(p)
	dot := c.axis[0]*v[0] + c.axis[1]*v[1] + c.axis[2]*v[2]
	return dot >= c.minDot
}

// Rect is a latitude/longitude bounding box in degrees.
type Rect struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether p is inside the box.
func (r Rect) Contains(p Point) bool {
	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat && p.Lng >= r.MinLng && p.Lng <= r.MaxLng
}

var world = Rect{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}

// Bound returns a rectangle that contains every point of the cap.
// Caps touching a pole or crossing the antimeridian widen to the full longitude range.
func (c Cap) Bound() Rect {
	if c.angle >= math.Pi/2 {
		return world
	}
	lat := toRad(c.center.Lat)
	minLat, maxLat := lat-c.angle, lat+c.angle
	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return Rect{
			MinLat: math.Max(toDeg(minLat), -90),
			MaxLat: math.Min(toDeg(maxLat), 90),
			MinLng: -180,
			MaxLng: 180,
		}
	}

	dLng := math.Asin(math.Sin(c.angle) / math.Cos(lat))
	r := Rect{
		MinLat: toDeg(minLat),
		MaxLat: toDeg(maxLat),
		MinLng: c.center.Lng - toDeg(dLng),
		MaxLng: c.center.Lng + toDeg(dLng),
	}
	if r.MinLng < -180 || r.MaxLng > 180 {
		r.MinLng, r.MaxLng = -180, 180
	}
	return r
}

// WithinRadius lazily yields the items of seq that lie within radiusKm of center.
// The result preserves input order and can be ranged again if seq can.
func WithinRadius[T Located](center Point, radiusKm float64, seq iter.Seq[T]) iter.Seq[T] {
	c := NewCap(center, radiusKm)
	return func(yield func(T) bool) {
		for item := range seq {
			if !c.Contains(item.Location()) {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// SortByDistance orders items by ascending distance from center, keeping input order for ties.
func SortByDistance[T Located](center Point, items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return DistanceKm(center, items[i].Location()) < DistanceKm(center, items[j].Location())
	})
}
