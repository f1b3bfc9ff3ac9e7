package types

import (
	"image"
	"math"
	"time"
)

// Frame is a single RGBA raster produced by the capture source.
// Pix is read-only once published.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Pix       []byte
}

// FaceBox is one recognized face in frame pixel space.
// Coordinates are JSON numbers and may be fractional.
type FaceBox struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Name   string  `json:"name"`
}

// Rect returns the box as (Left,Top)-(Right,Bottom), rounded to whole pixels.
func (f FaceBox) Rect() image.Rectangle {
	return image.Rect(px(f.Left), px(f.Top), px(f.Right), px(f.Bottom))
}

func px(v float64) int {
	return int(math.Round(v))
}

// RecognitionResult matches the JSON returned by POST /process-image.
// Seq is set client side to the sequence number of the request that produced it.
type RecognitionResult struct {
	Faces         []FaceBox `json:"recognized_faces"`
	NewAttendance bool      `json:"new_attendance"`
	Seq           uint64    `json:"-"`
}

// FirstName returns the name of the first recognized face, if any.
func (r *RecognitionResult) FirstName() (string, bool) {
	if r == nil || len(r.Faces) == 0 {
		return "", false
	}
	return r.Faces[0].Name, true
}

// AttendanceEntry is one record as served by GET /get-attendance.
type AttendanceEntry struct {
	Time string `json:"time"`
	Name string `json:"name"`
}

// AttendanceResponse is the envelope of GET /get-attendance.
type AttendanceResponse struct {
	Attendance []AttendanceEntry `json:"attendance"`
}

// ProcessImageRequest is the body of POST /process-image.
type ProcessImageRequest struct {
	Image string `json:"image"`
}

// StatusPresent is the only status the attendance table displays.
const StatusPresent = "Present"

// AttendanceRow is a displayed table row: time | name | status.
type AttendanceRow struct {
	Time   string `json:"time"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Toast is a transient notification.
type Toast struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
