package render

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Border detection tuning.
const (
	// uniformityThreshold is the largest channel standard deviation for a
	// row or column to count as solid border.
	uniformityThreshold = 25.0
	// minBorderSize is the smallest border (pixels) worth cropping.
	minBorderSize = 5
)

// toRGBA returns img as *image.RGBA with bounds starting at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// AutoCropBorders trims solid-colour borders of any colour from each edge.
//
// A row or column is border when the standard deviation of its RGB values
// is at most uniformityThreshold. Cropping happens only when at least one
// edge has a border of minBorderSize pixels or more; otherwise, or when the
// whole image is uniform, img is returned unchanged. cropped reports which.
func AutoCropBorders(img image.Image) (out image.Image, cropped bool) {
	rgba := toRGBA(img)
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return img, false
	}

	rowUniform := func(y int) bool {
		return lineStdDev(rgba, 0, y, 1, 0, w) <= uniformityThreshold
	}
	colUniform := func(x int) bool {
		return lineStdDev(rgba, x, 0, 0, 1, h) <= uniformityThreshold
	}

	top, bottom, left, right := 0, h, 0, w
	for top < h && rowUniform(top) {
		top++
	}
	for bottom > top && rowUniform(bottom-1) {
		bottom--
	}
	for left < w && colUniform(left) {
		left++
	}
	for right > left && colUniform(right-1) {
		right--
	}

	if left >= right || top >= bottom {
		return img, false
	}
	if top < minBorderSize && h-bottom < minBorderSize && left < minBorderSize && w-right < minBorderSize {
		return img, false
	}

	return rgba.SubImage(image.Rect(left, top, right, bottom)), true
}

// lineStdDev is the standard deviation of the R, G and B samples of n pixels
// starting at (x, y) and stepping by (dx, dy).
func lineStdDev(img *image.RGBA, x, y, dx, dy, n int) float64 {
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		off := img.PixOffset(x+i*dx, y+i*dy)
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[off+c])
			sum += v
			sumSq += v * v
		}
	}
	count := float64(n * 3)
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Cover scales img to fill width x height, keeping the aspect ratio and
// cropping the overflow around the centre.
func Cover(img image.Image, width, height int) image.Image {
	sb := img.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())

	scale := math.Max(float64(width)/sw, float64(height)/sh)

	// Source region that maps onto the whole destination.
	cropW := math.Min(sw, float64(width)/scale)
	cropH := math.Min(sh, float64(height)/scale)
	x0 := sb.Min.X + int(math.Round((sw-cropW)/2))
	y0 := sb.Min.Y + int(math.Round((sh-cropH)/2))
	src := image.Rect(x0, y0, x0+int(math.Round(cropW)), y0+int(math.Round(cropH))).Intersect(sb)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// scaleToWidth scales img to width, keeping the aspect ratio. Images already
// narrower than width are returned unchanged.
func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
