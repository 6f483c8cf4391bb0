package engine

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	iface "LayoutOcrServer/interface"

	"gocv.io/x/gocv"
)

var boxColor = color.RGBA{R: 255, G: 64, B: 0, A: 255}

// Annotate draws the detected regions onto the frame and returns the
// result as JPEG bytes.
func Annotate(frame iface.Frame, regions []iface.Region) ([]byte, error) {
	mat, err := gocv.IMDecode(frame.Bytes, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	if mat.Empty() {
		_ = mat.Close()
		return nil, errors.New("decoded image is empty or unsupported format")
	}
	defer mat.Close()

	for _, r := range regions {
		rect := image.Rect(r.Box.XMin, r.Box.YMin, r.Box.XMax, r.Box.YMax)
		gocv.Rectangle(&mat, rect, boxColor, 2)
		center := r.Box.Center()
		gocv.Circle(&mat, image.Pt(center.X, center.Y), 3, boxColor, -1)
		caption := fmt.Sprintf("%s %.2f", r.Label, r.Confidence)
		gocv.PutText(&mat, caption, image.Pt(r.Box.XMin, r.Box.YMin-4),
			gocv.FontHersheySimplex, 0.5, boxColor, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
