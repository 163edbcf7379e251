// Package overlay annotates camera frames with the detected hand and the
// current prediction.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/detector"
)

// Layout constants, in pixels.
const (
	// BoxMargin expands the keypoint extent on every side.
	BoxMargin = 20

	barTop      = 20 // confidence bar top, above the box
	barBottom   = 10 // confidence bar bottom, above the box
	labelOffset = 30 // label baseline, above the box
	labelIndent = 5
)

// Style holds the colors and sizes used for drawing.
type Style struct {
	Box       color.RGBA
	Bar       color.RGBA
	Label     color.RGBA
	Landmark  color.RGBA
	Bone      color.RGBA
	FontScale float64
}

// DefaultStyle returns the palette used by the practice screen.
func DefaultStyle() Style {
	return Style{
		Box:       color.RGBA{R: 0, G: 255, B: 100, A: 0},
		Bar:       color.RGBA{R: 0, G: 255, B: 0, A: 0},
		Label:     color.RGBA{R: 30, G: 155, B: 155, A: 0},
		Landmark:  color.RGBA{R: 255, G: 48, B: 48, A: 0},
		Bone:      color.RGBA{R: 255, G: 255, B: 255, A: 0},
		FontScale: 0.8,
	}
}

// Renderer draws overlays. It holds no per-frame state and is safe for
// concurrent use.
type Renderer struct {
	style Style
}

// NewRenderer creates a Renderer with the given style.
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// Render returns an annotated copy of frame; frame itself is never modified.
// The caller must close the returned Mat.
//
// With keypoints, the hand skeleton and its bounding box are drawn; with a
// result as well, a confidence bar and the label text are drawn above the box.
// Without keypoints the copy is returned as is.
func (r *Renderer) Render(frame gocv.Mat, keypoints *detector.KeypointSet, result *classifier.Result) gocv.Mat {
	out := frame.Clone()
	if keypoints == nil || out.Empty() {
		return out
	}

	w, h := out.Cols(), out.Rows()

	for _, c := range detector.HandConnections {
		gocv.Line(&out, toPixel(keypoints[c[0]], w, h), toPixel(keypoints[c[1]], w, h), r.style.Bone, 2)
	}
	for _, p := range keypoints {
		gocv.Circle(&out, toPixel(p, w, h), 4, r.style.Landmark, -1)
	}

	box := BoundingBox(keypoints, w, h)

	// Blend the box outline so it stays translucent over the hand
	base := out.Clone()
	defer base.Close()
	gocv.Rectangle(&out, box, r.style.Box, 4)
	gocv.AddWeighted(base, 0.6, out, 0.4, 0, &out)

	if result == nil {
		return out
	}

	bar := image.Rect(box.Min.X, box.Min.Y-barTop, box.Min.X+BarWidth(box, result.Confidence), box.Min.Y-barBottom)
	if bar.Dx() > 0 {
		gocv.Rectangle(&out, bar, r.style.Bar, -1)
	}

	gocv.PutText(&out, LabelText(*result),
		image.Pt(box.Min.X+labelIndent, box.Min.Y-labelOffset),
		gocv.FontHersheySimplex, r.style.FontScale, r.style.Label, 2)

	return out
}

// BoundingBox returns the pixel rectangle around the keypoints, expanded by
// BoxMargin and clamped to a w x h frame.
func BoundingBox(keypoints *detector.KeypointSet, w, h int) image.Rectangle {
	minX, minY, maxX, maxY := keypoints.Bounds()

	x1 := max(0, int(minX*float64(w))-BoxMargin)
	y1 := max(0, int(minY*float64(h))-BoxMargin)
	x2 := min(w, int(maxX*float64(w))+BoxMargin)
	y2 := min(h, int(maxY*float64(h))+BoxMargin)

	return image.Rect(x1, y1, x2, y2)
}

// BarWidth returns the filled width of the confidence bar: confidence/100 of
// the box width, with confidence clamped to [0, 100].
func BarWidth(box image.Rectangle, confidence float64) int {
	confidence = min(100, max(0, confidence))
	return int(float64(box.Dx()) * confidence / 100)
}

// LabelText formats a result as "{letter} ({confidence}%)".
func LabelText(r classifier.Result) string {
	return fmt.Sprintf("%s (%.2f%%)", r.Label, r.Confidence)
}

func toPixel(p detector.Keypoint, w, h int) image.Point {
	return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
}
