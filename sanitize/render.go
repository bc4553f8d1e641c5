package sanitize

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// PageImage pulls the dominant embedded image of a scanned page and rescales
// it toward targetDPI. Scanned legal pages are single full-page image
// XObjects, so the largest image on the page stands in for a render.
// pageWidthPt is needed to derive the image's effective DPI.
func PageImage(ctx *model.Context, pageNr int, pageWidthPt float64, targetDPI int) (image.Image, error) {
	imgs, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("extract page %d images: %w", pageNr, err)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("page %d has no embedded image", pageNr)
	}

	var best image.Image
	bestArea := 0
	for _, pi := range imgs {
		data, err := io.ReadAll(pi)
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		area := img.Bounds().Dx() * img.Bounds().Dy()
		if area > bestArea {
			best, bestArea = img, area
		}
	}
	if best == nil {
		return nil, fmt.Errorf("page %d: no decodable image", pageNr)
	}

	return rescaleToDPI(best, pageWidthPt, targetDPI), nil
}

// rescaleToDPI scales an image so its effective resolution over the page
// width reaches targetDPI. Images already at or above the target pass
// through untouched.
func rescaleToDPI(img image.Image, pageWidthPt float64, targetDPI int) image.Image {
	if pageWidthPt <= 0 || targetDPI <= 0 {
		return img
	}
	pageWidthIn := pageWidthPt / 72.0
	curDPI := float64(img.Bounds().Dx()) / pageWidthIn
	if curDPI >= float64(targetDPI) {
		return img
	}

	scale := float64(targetDPI) / curDPI
	w := int(math.Round(float64(img.Bounds().Dx()) * scale))
	h := int(math.Round(float64(img.Bounds().Dy()) * scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}
