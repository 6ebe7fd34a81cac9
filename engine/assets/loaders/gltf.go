package loaders

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/scenebake/engine/assets"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/resources"
)

// DocumentLoader parses glTF 2.0 documents (JSON or binary container).
type DocumentLoader struct {
	fetcher assets.Fetcher
}

func NewDocumentLoader(fetcher assets.Fetcher) *DocumentLoader {
	return &DocumentLoader{fetcher: fetcher}
}

// Parse decodes data, the bytes fetched for locator. External buffers and
// images are fetched relative to locator.
func (dl *DocumentLoader) Parse(ctx context.Context, locator string, data []byte) (resources.Document, error) {
	fsys := fetchFS{ctx: ctx, fetcher: dl.fetcher, base: locator}

	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), fsys).Decode(doc); err != nil {
		err = fmt.Errorf("decoding '%s': %w: %s", locator, core.ErrDocumentInvalid, err)
		core.LogError(err.Error())
		return nil, err
	}
	return newGLTFDocument(doc, fsys), nil
}

// GLTFDocument adapts a decoded glTF document to resources.Document.
type GLTFDocument struct {
	doc  *gltf.Document
	fsys fs.FS
}

func newGLTFDocument(doc *gltf.Document, fsys fs.FS) *GLTFDocument {
	return &GLTFDocument{doc: doc, fsys: fsys}
}

func (d *GLTFDocument) ListScenes() []resources.Scene {
	out := make([]resources.Scene, 0, len(d.doc.Scenes))
	for _, s := range d.doc.Scenes {
		out = append(out, &gltfScene{owner: d, scene: s})
	}
	return out
}

func (d *GLTFDocument) ListMaterials() []resources.Material {
	out := make([]resources.Material, 0, len(d.doc.Materials))
	for _, m := range d.doc.Materials {
		out = append(out, &gltfMaterial{material: m})
	}
	return out
}

func (d *GLTFDocument) ListTextures() []resources.Texture {
	out := make([]resources.Texture, 0, len(d.doc.Textures))
	for i, t := range d.doc.Textures {
		out = append(out, &gltfTexture{owner: d, index: i, texture: t})
	}
	return out
}

func (d *GLTFDocument) node(index int) resources.Node {
	if index < 0 || index >= len(d.doc.Nodes) {
		core.LogWarn("glTF node index %d out of range", index)
		return nil
	}
	return &gltfNode{owner: d, node: d.doc.Nodes[index]}
}

type gltfScene struct {
	owner *GLTFDocument
	scene *gltf.Scene
}

func (s *gltfScene) Name() string { return s.scene.Name }

func (s *gltfScene) ListRootNodes() []resources.Node {
	out := make([]resources.Node, 0, len(s.scene.Nodes))
	for _, idx := range s.scene.Nodes {
		if n := s.owner.node(idx); n != nil {
			out = append(out, n)
		}
	}
	return out
}

type gltfNode struct {
	owner *GLTFDocument
	node  *gltf.Node
}

var identity64 = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func (n *gltfNode) Name() string { return n.node.Name }

func (n *gltfNode) Matrix() (math.Mat4, bool) {
	if n.node.Matrix == identity64 || n.node.Matrix == [16]float64{} {
		return math.Mat4{}, false
	}
	return math.NewMat4FromFloat64(n.node.Matrix), true
}

func (n *gltfNode) Translation() math.Vec3 {
	t := n.node.Translation
	return math.NewVec3(float32(t[0]), float32(t[1]), float32(t[2]))
}

func (n *gltfNode) Rotation() math.Quaternion {
	r := n.node.Rotation
	if r == [4]float64{} {
		return math.NewQuatIdentity()
	}
	return math.Quaternion{X: float32(r[0]), Y: float32(r[1]), Z: float32(r[2]), W: float32(r[3])}
}

func (n *gltfNode) Scale() math.Vec3 {
	s := n.node.Scale
	if s == [3]float64{} {
		return math.NewVec3One()
	}
	return math.NewVec3(float32(s[0]), float32(s[1]), float32(s[2]))
}

func (n *gltfNode) Mesh() resources.Mesh {
	if n.node.Mesh == nil {
		return nil
	}
	idx := *n.node.Mesh
	if idx < 0 || idx >= len(n.owner.doc.Meshes) {
		core.LogWarn("glTF node '%s' references missing mesh %d", n.node.Name, idx)
		return nil
	}
	return &gltfMesh{owner: n.owner, mesh: n.owner.doc.Meshes[idx]}
}

func (n *gltfNode) ListChildren() []resources.Node {
	out := make([]resources.Node, 0, len(n.node.Children))
	for _, idx := range n.node.Children {
		if c := n.owner.node(idx); c != nil {
			out = append(out, c)
		}
	}
	return out
}

type gltfMesh struct {
	owner *GLTFDocument
	mesh  *gltf.Mesh
}

func (m *gltfMesh) Name() string { return m.mesh.Name }

func (m *gltfMesh) ListPrimitives() []resources.Primitive {
	out := make([]resources.Primitive, 0, len(m.mesh.Primitives))
	for _, p := range m.mesh.Primitives {
		out = append(out, &gltfPrimitive{owner: m.owner, primitive: p})
	}
	return out
}

type gltfPrimitive struct {
	owner     *GLTFDocument
	primitive *gltf.Primitive
}

func (p *gltfPrimitive) Mode() resources.DrawMode {
	switch p.primitive.Mode {
	case gltf.PrimitiveTriangles:
		return resources.DrawModeTriangles
	case gltf.PrimitivePoints:
		return resources.DrawModePoints
	case gltf.PrimitiveLines:
		return resources.DrawModeLines
	case gltf.PrimitiveLineLoop:
		return resources.DrawModeLineLoop
	case gltf.PrimitiveLineStrip:
		return resources.DrawModeLineStrip
	case gltf.PrimitiveTriangleStrip:
		return resources.DrawModeTriangleStrip
	default:
		return resources.DrawModeTriangleFan
	}
}

func (p *gltfPrimitive) accessor(index int) (*gltf.Accessor, error) {
	if index < 0 || index >= len(p.owner.doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range: %w", index, core.ErrDocumentInvalid)
	}
	return p.owner.doc.Accessors[index], nil
}

func (p *gltfPrimitive) Positions() ([]float32, error) {
	idx, ok := p.primitive.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute: %w", core.ErrDocumentInvalid)
	}
	acr, err := p.accessor(idx)
	if err != nil {
		return nil, err
	}
	vecs, err := modeler.ReadPosition(p.owner.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	out := make([]float32, 0, len(vecs)*3)
	for _, v := range vecs {
		out = append(out, v[0], v[1], v[2])
	}
	return out, nil
}

func (p *gltfPrimitive) TexCoords() ([]float32, error) {
	idx, ok := p.primitive.Attributes[gltf.TEXCOORD_0]
	if !ok {
		return nil, nil
	}
	acr, err := p.accessor(idx)
	if err != nil {
		return nil, err
	}
	uvs, err := modeler.ReadTextureCoord(p.owner.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading texture coordinates: %w", err)
	}
	out := make([]float32, 0, len(uvs)*2)
	for _, uv := range uvs {
		out = append(out, uv[0], uv[1])
	}
	return out, nil
}

func (p *gltfPrimitive) Indices() ([]uint32, error) {
	if p.primitive.Indices == nil {
		return nil, nil
	}
	acr, err := p.accessor(*p.primitive.Indices)
	if err != nil {
		return nil, err
	}
	indices, err := modeler.ReadIndices(p.owner.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading indices: %w", err)
	}
	return indices, nil
}

func (p *gltfPrimitive) Material() resources.Material {
	if p.primitive.Material == nil {
		return nil
	}
	idx := *p.primitive.Material
	if idx < 0 || idx >= len(p.owner.doc.Materials) {
		core.LogWarn("glTF primitive references missing material %d", idx)
		return nil
	}
	return &gltfMaterial{material: p.owner.doc.Materials[idx]}
}

type gltfMaterial struct {
	material *gltf.Material
}

func (m *gltfMaterial) Name() string { return m.material.Name }

func (m *gltfMaterial) BaseColorTexture() (int, bool) {
	pbr := m.material.PBRMetallicRoughness
	if pbr == nil || pbr.BaseColorTexture == nil {
		return 0, false
	}
	return pbr.BaseColorTexture.Index, true
}

type gltfTexture struct {
	owner   *GLTFDocument
	index   int
	texture *gltf.Texture
}

func (t *gltfTexture) Index() int { return t.index }

func (t *gltfTexture) Name() string {
	if t.texture.Name != "" {
		return t.texture.Name
	}
	return fmt.Sprintf("texture_%d", t.index)
}

// ReadImage returns the encoded bytes of the texture source image, whether it
// is stored in a buffer view, embedded as a data URI or referenced externally.
func (t *gltfTexture) ReadImage() ([]byte, string, error) {
	doc := t.owner.doc
	if t.texture.Source == nil || *t.texture.Source < 0 || *t.texture.Source >= len(doc.Images) {
		return nil, "", fmt.Errorf("texture %d has no image source: %w", t.index, core.ErrDocumentInvalid)
	}
	img := doc.Images[*t.texture.Source]

	switch {
	case img.BufferView != nil:
		if *img.BufferView < 0 || *img.BufferView >= len(doc.BufferViews) {
			return nil, "", fmt.Errorf("image buffer view %d out of range: %w", *img.BufferView, core.ErrDocumentInvalid)
		}
		data, err := modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		return data, img.MimeType, err
	case img.IsEmbeddedResource():
		data, err := img.MarshalData()
		return data, img.MimeType, err
	case img.URI != "":
		name, err := url.PathUnescape(img.URI)
		if err != nil {
			name = img.URI
		}
		data, err := fs.ReadFile(t.owner.fsys, strings.TrimPrefix(name, "./"))
		return data, img.MimeType, err
	default:
		return nil, "", fmt.Errorf("image %d has neither uri nor buffer view: %w", *t.texture.Source, core.ErrDocumentInvalid)
	}
}
