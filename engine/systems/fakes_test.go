package systems

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/resources"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = time.Millisecond
)

type fakeDocument struct {
	scenes    []resources.Scene
	materials []resources.Material
	textures  []resources.Texture
}

func (d *fakeDocument) ListScenes() []resources.Scene       { return d.scenes }
func (d *fakeDocument) ListMaterials() []resources.Material { return d.materials }
func (d *fakeDocument) ListTextures() []resources.Texture   { return d.textures }

type fakeScene struct {
	roots []resources.Node
}

func (s *fakeScene) Name() string                    { return "scene" }
func (s *fakeScene) ListRootNodes() []resources.Node { return s.roots }

type fakeNode struct {
	name        string
	matrix      *math.Mat4
	translation math.Vec3
	rotation    math.Quaternion
	scale       math.Vec3
	mesh        resources.Mesh
	children    []resources.Node
}

func newFakeNode(name string) *fakeNode {
	return &fakeNode{
		name:     name,
		rotation: math.NewQuatIdentity(),
		scale:    math.NewVec3One(),
	}
}

func (n *fakeNode) Name() string { return n.name }
func (n *fakeNode) Matrix() (math.Mat4, bool) {
	if n.matrix == nil {
		return math.Mat4{}, false
	}
	return *n.matrix, true
}
func (n *fakeNode) Translation() math.Vec3         { return n.translation }
func (n *fakeNode) Rotation() math.Quaternion      { return n.rotation }
func (n *fakeNode) Scale() math.Vec3               { return n.scale }
func (n *fakeNode) Mesh() resources.Mesh           { return n.mesh }
func (n *fakeNode) ListChildren() []resources.Node { return n.children }

type fakeMesh struct {
	name       string
	primitives []resources.Primitive
}

func (m *fakeMesh) Name() string                          { return m.name }
func (m *fakeMesh) ListPrimitives() []resources.Primitive { return m.primitives }

type fakePrimitive struct {
	mode      resources.DrawMode
	positions []float32
	texCoords []float32
	indices   []uint32
	material  resources.Material
	err       error
}

func (p *fakePrimitive) Mode() resources.DrawMode { return p.mode }
func (p *fakePrimitive) Positions() ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return append([]float32(nil), p.positions...), nil
}
func (p *fakePrimitive) TexCoords() ([]float32, error) { return p.texCoords, nil }
func (p *fakePrimitive) Indices() ([]uint32, error)    { return p.indices, nil }
func (p *fakePrimitive) Material() resources.Material  { return p.material }

type fakeMaterial struct {
	name    string
	texture int
	hasTex  bool
}

func (m *fakeMaterial) Name() string                  { return m.name }
func (m *fakeMaterial) BaseColorTexture() (int, bool) { return m.texture, m.hasTex }

type fakeTexture struct {
	index int
	data  []byte
}

func (t *fakeTexture) Index() int   { return t.index }
func (t *fakeTexture) Name() string { return fmt.Sprintf("fake_%d", t.index) }
func (t *fakeTexture) ReadImage() ([]byte, string, error) {
	return t.data, "image/png", nil
}

func pngBytes(c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func trianglePrimitive(material resources.Material) *fakePrimitive {
	return &fakePrimitive{
		mode:      resources.DrawModeTriangles,
		positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		texCoords: []float32{0, 0, 1, 0, 0, 1},
		indices:   []uint32{0, 1, 2},
		material:  material,
	}
}

// newTexturedDocument returns a document with one root node holding a mesh of
// two textured triangles sharing texture 0, and a child node translated by
// (0, 10, 0) with one untextured triangle.
func newTexturedDocument() *fakeDocument {
	painted := &fakeMaterial{name: "painted", texture: 0, hasTex: true}

	child := newFakeNode("child")
	child.translation = math.NewVec3(0, 10, 0)
	child.mesh = &fakeMesh{name: "plain", primitives: []resources.Primitive{trianglePrimitive(nil)}}

	root := newFakeNode("root")
	root.mesh = &fakeMesh{name: "textured", primitives: []resources.Primitive{
		trianglePrimitive(painted),
		trianglePrimitive(painted),
	}}
	root.children = []resources.Node{child}

	return &fakeDocument{
		scenes:    []resources.Scene{&fakeScene{roots: []resources.Node{root}}},
		materials: []resources.Material{painted},
		textures:  []resources.Texture{&fakeTexture{index: 0, data: pngBytes(color.White)}},
	}
}

// fakeParser hands out prepared documents keyed by the fetched bytes.
type fakeParser struct {
	docs map[string]resources.Document
}

func (p *fakeParser) Parse(_ context.Context, locator string, data []byte) (resources.Document, error) {
	doc, ok := p.docs[string(data)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", locator, core.ErrDocumentInvalid)
	}
	return doc, nil
}

// countingFetcher returns the locator itself as the document bytes. When gate
// is set every fetch blocks until it is closed.
type countingFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	total   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	fail    error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[string]int)}
}

func (f *countingFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	f.calls[locator]++
	f.mu.Unlock()
	f.total.Add(1)

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return []byte(locator), nil
}

func (f *countingFetcher) Calls(locator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[locator]
}
