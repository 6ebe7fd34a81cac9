package loaders

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// decoders registered with image.Decode
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/scenebake/engine/core"
)

var supportedMimeTypes = map[string]bool{
	"":           true,
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// DecodeImage decodes an encoded texture image into tightly packed RGBA.
// mimeType is advisory; the format is sniffed from the data.
func DecodeImage(name string, data []byte, mimeType string) (*image.RGBA, error) {
	if !supportedMimeTypes[strings.ToLower(mimeType)] {
		err := fmt.Errorf("texture '%s' has mime type '%s': %w", name, mimeType, core.ErrUnsupportedImage)
		core.LogError(err.Error())
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		err = fmt.Errorf("decoding texture '%s': %w: %s", name, core.ErrUnsupportedImage, err)
		core.LogError(err.Error())
		return nil, err
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	core.LogDebug("decoded %s texture '%s' (%dx%d)", format, name, bounds.Dx(), bounds.Dy())
	return rgba, nil
}
