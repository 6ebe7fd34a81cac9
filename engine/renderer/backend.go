package renderer

import (
	"image"

	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
)

/**
 * @brief The host rendering API consumed by models. GPU buffer creation, texture
 * upload and draw submission all live behind this interface.
 */
type Backend interface {
	/** @brief Creates a mesh buffer able to hold vertexCount vertices and indexCount indices. */
	CreateMeshData(vertexCount, indexCount uint32) *metadata.MeshData
	/** @brief Uploads a decoded image as a static texture. */
	CreateStaticTexture(name string, img image.Image) (*metadata.Texture, error)
	DeleteTexture(texture *metadata.Texture)
	/** @brief Binds the texture used by following draws. nil binds no texture. */
	BindTexture(texture *metadata.Texture)
	SetFillMode(mode metadata.FillMode)
	DrawMesh(data *metadata.MeshData)
}
