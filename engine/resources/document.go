package resources

import "github.com/spaghettifunk/scenebake/engine/math"

/** @brief The draw mode of a primitive. Only triangles are baked into meshes. */
type DrawMode int

const (
	DrawModeTriangles DrawMode = iota
	DrawModePoints
	DrawModeLines
	DrawModeLineLoop
	DrawModeLineStrip
	DrawModeTriangleStrip
	DrawModeTriangleFan
)

func (m DrawMode) String() string {
	switch m {
	case DrawModeTriangles:
		return "triangles"
	case DrawModePoints:
		return "points"
	case DrawModeLines:
		return "lines"
	case DrawModeLineLoop:
		return "line_loop"
	case DrawModeLineStrip:
		return "line_strip"
	case DrawModeTriangleStrip:
		return "triangle_strip"
	case DrawModeTriangleFan:
		return "triangle_fan"
	default:
		return "unknown"
	}
}

/**
 * @brief A parsed scene document. Implementations are read-only once parsed
 * and may be shared by every model instance built from the same locator.
 */
type Document interface {
	ListScenes() []Scene
	ListMaterials() []Material
	ListTextures() []Texture
}

type Scene interface {
	Name() string
	ListRootNodes() []Node
}

type Node interface {
	Name() string
	/** @brief The explicit local matrix, if the node carries one. */
	Matrix() (math.Mat4, bool)
	Translation() math.Vec3
	Rotation() math.Quaternion
	Scale() math.Vec3
	/** @brief The mesh attached to this node, or nil. */
	Mesh() Mesh
	ListChildren() []Node
}

type Mesh interface {
	Name() string
	ListPrimitives() []Primitive
}

type Primitive interface {
	Mode() DrawMode
	/** @brief Flat xyz positions read from the POSITION accessor. */
	Positions() ([]float32, error)
	/** @brief Flat uv pairs from TEXCOORD_0, nil when absent. */
	TexCoords() ([]float32, error)
	/** @brief Index list, nil for non-indexed primitives. */
	Indices() ([]uint32, error)
	/** @brief The primitive material, or nil. */
	Material() Material
}

type Material interface {
	Name() string
	/** @brief The document texture index of the base colour texture. */
	BaseColorTexture() (int, bool)
}

type Texture interface {
	/** @brief The index of the texture within its document. */
	Index() int
	Name() string
	/** @brief Returns the encoded image bytes and their mime type, if known. */
	ReadImage() ([]byte, string, error)
}
