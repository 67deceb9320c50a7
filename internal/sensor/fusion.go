package sensor

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
)

// Euler is one orientation reading from the device's onboard fusion, in
// degrees. Heading is only populated by Euler-mode exports.
type Euler struct {
	Time    time.Time
	Roll    float64
	Pitch   float64
	Yaw     float64
	Heading float64
}

// Quaternion is a unit rotation as exported by quaternion-mode fusion.
type Quaternion struct {
	W, X, Y, Z float64
}

// Euler converts q to ZYX roll, pitch and yaw in degrees.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return 0, 0, 0
	}
	w, x, y, z := q.W/n, q.X/n, q.Y/n, q.Z/n

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sinp := 2 * (w*y - z*x)
	sinp = math.Max(-1, math.Min(1, sinp))
	pitch = math.Asin(sinp)
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll * 180 / math.Pi, pitch * 180 / math.Pi, yaw * 180 / math.Pi
}

// ReadFusion decodes an onboard fusion export. Both the epoch,w,x,y,z
// quaternion layout and the epoch,heading,pitch,roll,yaw Euler layout are
// accepted; quaternions are converted to Euler angles.
func ReadFusion(r io.Reader, name string, loc *time.Location) ([]Euler, error) {
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}
	ti, tcol, err := t.require(timestampColumns...)
	if err != nil {
		return nil, err
	}

	_, _, quaternion := t.column("w")
	var cols []string
	if quaternion {
		cols = []string{"w", "x", "y", "z"}
	} else {
		cols = []string{"heading", "pitch", "roll", "yaw"}
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i], _, err = t.require(c); err != nil {
			return nil, err
		}
	}

	out := make([]Euler, 0, len(t.rows))
	for n, row := range t.rows {
		line := n + 2
		if blankRow(row) {
			continue
		}
		ts, err := t.time(row, line, ti, tcol, loc)
		if err != nil {
			return nil, err
		}
		v := make([]float64, len(cols))
		for i := range cols {
			if v[i], err = t.float(row, line, idx[i], cols[i]); err != nil {
				return nil, err
			}
		}
		e := Euler{Time: ts}
		if quaternion {
			e.Roll, e.Pitch, e.Yaw = Quaternion{W: v[0], X: v[1], Y: v[2], Z: v[3]}.Euler()
		} else {
			e.Heading, e.Pitch, e.Roll, e.Yaw = v[0], v[1], v[2], v[3]
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// ReadFusionFile opens path on fsys and decodes it with ReadFusion.
func ReadFusionFile(fsys fsutil.FileSystem, path string, loc *time.Location) ([]Euler, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fusion stream: %w", err)
	}
	defer f.Close()
	return ReadFusion(f, path, loc)
}
