package metadata

const (
	/** @brief The default texture name. */
	DEFAULT_TEXTURE_NAME string = "default"
)

/**
 * @brief Decoded pixels ready to be uploaded to the GPU.
 */
type TextureData struct {
	/** @brief The texture name, usually the file it was loaded from. */
	Name string
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief Tightly packed RGBA8 pixels, Width*Height*4 bytes. */
	Pixels []uint8
}

// DefaultTextureData returns a checkerboard used until the real texture
// has been decoded.
func DefaultTextureData() *TextureData {
	const dimension = 256
	const tile = 32
	pixels := make([]uint8, dimension*dimension*4)
	for row := 0; row < dimension; row++ {
		for col := 0; col < dimension; col++ {
			idx := (row*dimension + col) * 4
			pixels[idx+3] = 255
			if ((row/tile)+(col/tile))%2 == 0 {
				pixels[idx] = 255
				pixels[idx+1] = 255
				pixels[idx+2] = 255
			} else {
				pixels[idx] = 40
				pixels[idx+1] = 40
				pixels[idx+2] = 40
			}
		}
	}
	return &TextureData{
		Name:   DEFAULT_TEXTURE_NAME,
		Width:  dimension,
		Height: dimension,
		Pixels: pixels,
	}
}

/** @brief A gaze sample in normalized window coordinates. */
type EyeTrackingData struct {
	PositionX float32
	PositionY float32
}
