package metadata

/** @brief Determines how a mesh is rasterized. */
type FillMode int

const (
	/** @brief Untextured meshes are filled with their vertex colours. */
	FillModeColor FillMode = iota
	/** @brief Textured meshes sample their bound texture. */
	FillModeTexture
)

func (f FillMode) String() string {
	if f == FillModeTexture {
		return "texture"
	}
	return "color"
}
