package iface

// Frame is an uploaded image as received on the wire. Decoding happens
// inside the consuming backend, never in the orchestration layer.
type Frame struct {
	Bytes       []byte
	ContentType string
}

type Position struct {
	X, Y int
}

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

func (b Box) Width() int  { return b.XMax - b.XMin }
func (b Box) Height() int { return b.YMax - b.YMin }

func (b Box) Center() Position {
	return Position{X: (b.XMin + b.XMax) / 2, Y: (b.YMin + b.YMax) / 2}
}

// Region is one labeled detection. An empty region list is a valid
// detection outcome and must not be treated as an error.
type Region struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// TextField is one piece of recognized text. Region is nil for
// whole-image extraction.
type TextField struct {
	Region     *Region `json:"region,omitempty"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence,omitempty"`
}

// ApiResponse is the uniform envelope returned to callers. Exactly one
// of Data/Error is set, depending on Success. Use OkResponse and
// ErrResponse instead of building it by hand.
type ApiResponse struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
}

func OkResponse(data any) ApiResponse {
	return ApiResponse{Success: true, Data: data}
}

func ErrResponse(msg string) ApiResponse {
	return ApiResponse{Success: false, Error: &msg}
}
