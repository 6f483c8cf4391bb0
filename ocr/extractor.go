package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	iface "LayoutOcrServer/interface"

	"gocv.io/x/gocv"
)

type Config struct {
	Workers   int
	Languages []string
}

// Extractor recognizes text in frames via a pool of Tesseract workers.
// It implements iface.TextExtractor.
type Extractor struct {
	pool *pool
}

func New(cfg Config) *Extractor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	factory := func() (recognizer, error) {
		return newGosseractRecognizer(cfg.Languages)
	}
	return &Extractor{pool: newPool(cfg.Workers, factory)}
}

func (e *Extractor) Close() {
	e.pool.close()
}

// ExtractWholeImage runs OCR over the full frame. At most one text
// field is produced; none when the image holds no text.
func (e *Extractor) ExtractWholeImage(ctx context.Context, frame iface.Frame) ([]iface.TextField, error) {
	text, err := e.pool.recognize(ctx, frame.Bytes)
	if err != nil {
		return nil, fmt.Errorf("whole-image ocr: %w", err)
	}
	fields := make([]iface.TextField, 0, 1)
	if t := strings.TrimSpace(text); t != "" {
		fields = append(fields, iface.TextField{Text: t, Confidence: estimateConfidence(t)})
	}
	return fields, nil
}

// ExtractFromRegions crops the frame to each region, in region order,
// and recognizes each crop. Regions falling outside the image or
// producing no text are skipped. The result is empty, never nil, when
// nothing is found.
func (e *Extractor) ExtractFromRegions(ctx context.Context, frame iface.Frame, regions []iface.Region) ([]iface.TextField, error) {
	fields := make([]iface.TextField, 0, len(regions))
	if len(regions) == 0 {
		return fields, nil
	}

	mat, err := gocv.IMDecode(frame.Bytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if mat.Empty() {
		_ = mat.Close()
		return nil, errors.New("decoded image is empty or unsupported format")
	}
	defer mat.Close()

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	for _, region := range regions {
		rect := clampBox(region.Box, bounds)
		if rect.Empty() {
			continue
		}
		crop := mat.Region(rect)
		buf, err := gocv.IMEncode(gocv.PNGFileExt, crop)
		_ = crop.Close()
		if err != nil {
			return nil, fmt.Errorf("encode crop: %w", err)
		}
		img := make([]byte, len(buf.GetBytes()))
		copy(img, buf.GetBytes())
		buf.Close()

		text, err := e.pool.recognize(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("region ocr: %w", err)
		}
		t := strings.TrimSpace(text)
		if t == "" {
			continue
		}
		r := region
		fields = append(fields, iface.TextField{
			Region:     &r,
			Text:       t,
			Confidence: estimateConfidence(t),
		})
	}
	return fields, nil
}

// clampBox restricts a region box to the image bounds.
func clampBox(b iface.Box, bounds image.Rectangle) image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax).Intersect(bounds)
}

// estimateConfidence scores recognized text from its shape. The base
// Tesseract text API exposes no per-field confidence, so this is a
// rough stand-in capped well below certainty.
func estimateConfidence(text string) float32 {
	conf := float32(0.5)
	if len(text) > 20 {
		conf += 0.1
	}
	alpha := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			alpha++
		}
	}
	if ratio := float32(alpha) / float32(len(text)); ratio > 0.5 && ratio < 0.95 {
		conf += 0.2
	}
	if conf > 0.85 {
		conf = 0.85
	}
	return conf
}
