package inference

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxThickness = 2

var (
	boxColor   = color.RGBA{R: 0, G: 200, B: 60, A: 255}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelBack  = color.RGBA{R: 0, G: 120, B: 40, A: 255}
)

// Annotator renders detection boxes and labels onto JPEG frames. Detections
// below the draw threshold are skipped; the alerting threshold is separate
// and typically higher.
type Annotator struct {
	drawThreshold float64
	quality       int
}

// NewAnnotator creates an annotator drawing detections at or above threshold.
func NewAnnotator(threshold float64) *Annotator {
	return &Annotator{drawThreshold: threshold, quality: 80}
}

// Annotate decodes payload as JPEG, draws each qualifying detection and
// returns the re-encoded frame along with its dimensions. Payloads that are
// not decodable images are returned unchanged.
func (a *Annotator) Annotate(payload []byte, detections []Detection) (annotated []byte, width, height int, err error) {
	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		// Not a decodable frame (e.g. a video clip), pass through untouched
		return payload, 0, 0, nil
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, det := range detections {
		if det.Confidence < a.drawThreshold {
			continue
		}
		box := image.Rect(int(det.X1), int(det.Y1), int(det.X2), int(det.Y2)).Intersect(bounds)
		if box.Empty() {
			continue
		}
		drawBox(canvas, box)
		drawLabel(canvas, box, labelText(det))
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode annotated frame: %w", err)
	}
	return out.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// labelText formats the label as class name plus confidence to two decimals.
func labelText(det Detection) string {
	return fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
}

// drawBox outlines box on canvas.
func drawBox(canvas *image.RGBA, box image.Rectangle) {
	for t := 0; t < boxThickness; t++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			setPixel(canvas, x, box.Min.Y+t)
			setPixel(canvas, x, box.Max.Y-1-t)
		}
		for y := box.Min.Y; y < box.Max.Y; y++ {
			setPixel(canvas, box.Min.X+t, y)
			setPixel(canvas, box.Max.X-1-t, y)
		}
	}
}

func setPixel(canvas *image.RGBA, x, y int) {
	if image.Pt(x, y).In(canvas.Bounds()) {
		canvas.Set(x, y, boxColor)
	}
}

// drawLabel renders text on a filled strip just above the box, or inside the
// top edge when the box touches the image top.
func drawLabel(canvas *image.RGBA, box image.Rectangle, text string) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	stripHeight := face.Metrics().Height.Ceil() + 2

	stripTop := box.Min.Y - stripHeight
	if stripTop < canvas.Bounds().Min.Y {
		stripTop = box.Min.Y
	}
	strip := image.Rect(box.Min.X, stripTop, box.Min.X+textWidth+6, stripTop+stripHeight).
		Intersect(canvas.Bounds())
	draw.Draw(canvas, strip, &image.Uniform{C: labelBack}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  &image.Uniform{C: labelColor},
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(strip.Min.X + 3),
			Y: fixed.I(strip.Min.Y + face.Metrics().Ascent.Ceil()),
		},
	}
	drawer.DrawString(text)
}
