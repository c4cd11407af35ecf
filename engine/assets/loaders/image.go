package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// ImageLoader decodes png, jpeg, bmp and webp files into RGBA8 pixels.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	flip := false
	if typedParams, ok := params.(*metadata.ImageResourceParams); ok && typedParams != nil {
		flip = typedParams.FlipY
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, core.Wrapf(err, "opening %s", path)
	}
	defer file.Close()

	data, err := DecodeImage(file, filepath.Base(path), flip)
	if err != nil {
		return nil, core.Wrapf(err, "image %s", path)
	}

	return &metadata.Resource{
		Name:     data.Name,
		Type:     metadata.ResourceTypeImage,
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

// DecodeImage converts any registered image format to tightly packed RGBA.
func DecodeImage(r io.Reader, name string, flipY bool) (*metadata.TextureData, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, core.Wrapf(err, "decoding")
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, core.Errorf("%s image has no pixels", format)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	width, height := bounds.Dx(), bounds.Dy()
	pixels := make([]uint8, width*height*4)
	rowSize := width * 4
	for y := 0; y < height; y++ {
		srcRow := y
		if flipY {
			srcRow = height - 1 - y
		}
		copy(pixels[y*rowSize:(y+1)*rowSize], rgba.Pix[srcRow*rgba.Stride:srcRow*rgba.Stride+rowSize])
	}

	core.LogDebug("decoded %s image '%s' (%dx%d)", format, name, width, height)
	return &metadata.TextureData{
		Name:   name,
		Width:  uint32(width),
		Height: uint32(height),
		Pixels: pixels,
	}, nil
}
