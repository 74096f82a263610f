// Package pose holds the immutable pose value sent to the robot and its
// rosbridge wire form.
package pose

// Vector3 is a position in metres
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation. It is passed through as-is; nothing here
// normalizes it.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is a position and orientation in a named reference frame.
// A Pose is a value: copies never share state.
type Pose struct {
	Frame       string
	Position    Vector3
	Orientation Quaternion
}

// New builds a planar pose: position z and orientation x/y are zero.
func New(frame string, px, py, oz, ow float64) Pose {
	return Pose{
		Frame:       frame,
		Position:    Vector3{X: px, Y: py},
		Orientation: Quaternion{Z: oz, W: ow},
	}
}

// NewFull builds a pose from all seven scalars.
func NewFull(frame string, px, py, pz, ox, oy, oz, ow float64) Pose {
	return Pose{
		Frame:       frame,
		Position:    Vector3{X: px, Y: py, Z: pz},
		Orientation: Quaternion{X: ox, Y: oy, Z: oz, W: ow},
	}
}

// Header is the std_msgs/Header subset the peer reads
type Header struct {
	FrameID string `json:"frame_id"`
}

// Body is the geometry_msgs/Pose part of a stamped pose
type Body struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Wire is the geometry_msgs/PoseStamped shape:
//
//	{ header: { frame_id }, pose: { position: {x,y,z}, orientation: {x,y,z,w} } }
type Wire struct {
	Header Header `json:"header"`
	Pose   Body   `json:"pose"`
}

// ToWire returns the stamped wire form. It has no side effects.
func (p Pose) ToWire() Wire {
	return Wire{
		Header: Header{FrameID: p.Frame},
		Pose:   p.Body(),
	}
}

// Body returns only the pose part, as carried in a PoseArray.
func (p Pose) Body() Body {
	return Body{Position: p.Position, Orientation: p.Orientation}
}

// Valid reports whether the pose carries a frame label.
func (p Pose) Valid() bool {
	return p.Frame != ""
}
