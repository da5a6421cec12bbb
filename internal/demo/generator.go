// Package demo fills an empty detection database with synthetic plate and
// color detections for local runs.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

const (
	AttributePlate = 1
	AttributeColor = 2
)

var colors = []string{"white", "black", "gray", "silver", "red", "blue", "green", "yellow"}

// colorWeights skews the distribution toward the common car colors.
var colorWeights = []int{28, 22, 16, 12, 9, 7, 4, 2}

var defaultCameras = []string{"cam-north-01", "cam-south-02", "cam-gate-03"}

// Object is one tracked vehicle as seen by a camera.
type Object struct {
	ID       int64
	ObjectID string
	CameraID string
	InitTime int64
	EndTime  int64
}

// Detection is one attribute reading of an object: its plate or its color.
type Detection struct {
	ID          int64
	ObjectID    string
	AttributeID int
	Description string
	Accuracy    float64
	InitTime    int64
	Timestamp   int64
	CreatedAt   time.Time
}

type Generator struct {
	rnd      *rand.Rand
	cameras  []string
	sequence int64
	detected int64
	now      func() time.Time
}

func NewGenerator(seed int64, cameras []string) *Generator {
	if len(cameras) == 0 {
		cameras = defaultCameras
	}
	return &Generator{
		rnd:     rand.New(rand.NewSource(seed)),
		cameras: cameras,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NextVehicle returns an object seen at some point in the last days days
// together with its plate and color detections.
func (g *Generator) NextVehicle(days int) (Object, []Detection) {
	g.sequence++
	window := time.Duration(days) * 24 * time.Hour
	seenAt := g.now().Add(-time.Duration(g.rnd.Int63n(int64(window))))
	initMs := seenAt.UnixMilli()
	endMs := initMs + int64(500+g.rnd.Intn(9500))

	camera := pickOne(g.rnd, g.cameras)
	// The last 27 characters identify the track; the prefix is the camera.
	objectID := fmt.Sprintf("%s-%026x", camera, g.rnd.Uint64())[:len(camera)+27]
	object := Object{
		ID:       g.sequence,
		ObjectID: objectID,
		CameraID: camera,
		InitTime: initMs,
		EndTime:  endMs,
	}

	detections := make([]Detection, 0, 2)
	for _, attribute := range []int{AttributePlate, AttributeColor} {
		g.detected++
		description := g.plate()
		if attribute == AttributeColor {
			description = g.color()
		}
		detections = append(detections, Detection{
			ID:          g.detected,
			ObjectID:    objectID,
			AttributeID: attribute,
			Description: description,
			Accuracy:    round2(0.55 + g.rnd.Float64()*0.45),
			InitTime:    initMs,
			Timestamp:   initMs + int64(g.rnd.Intn(int(endMs-initMs)+1)),
			CreatedAt:   seenAt.UTC().Truncate(time.Second),
		})
	}
	return object, detections
}

// plate follows the current four letters and two digits format.
func (g *Generator) plate() string {
	const letters = "BCDFGHJKLPRSTVWXYZ"
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteByte(letters[g.rnd.Intn(len(letters))])
	}
	fmt.Fprintf(&b, "%02d", g.rnd.Intn(100))
	return b.String()
}

func (g *Generator) color() string {
	total := 0
	for _, weight := range colorWeights {
		total += weight
	}
	p := g.rnd.Intn(total)
	for i, weight := range colorWeights {
		if p < weight {
			return colors[i]
		}
		p -= weight
	}
	return colors[len(colors)-1]
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
