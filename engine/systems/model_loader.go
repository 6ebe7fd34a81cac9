package systems

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/scenebake/engine/assets"
	"github.com/spaghettifunk/scenebake/engine/assets/loaders"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
	"github.com/spaghettifunk/scenebake/engine/resources"
)

// glTF forbids cycles; the limit keeps a malformed document from recursing forever.
const maxNodeDepth = 256

/** @brief Turns fetched bytes into a scene document. */
type DocumentParser interface {
	Parse(ctx context.Context, locator string, data []byte) (resources.Document, error)
}

type ModelLoaderConfig struct {
	// DecodeConcurrency bounds the number of textures decoded at once.
	DecodeConcurrency int
	// PoolingEnabled allows models to use the shared transform pool.
	PoolingEnabled bool
}

type LoadOptions struct {
	// UseWorkers moves per-frame vertex transforms to the shared pool.
	UseWorkers bool
}

/**
 * @brief Builds models from locators. Documents and textures are shared through
 * the model cache; transforms are shared through the injected pool.
 */
type ModelLoader struct {
	config     *ModelLoaderConfig
	cache      *ModelCache
	sharedPool *SharedPool
	fetcher    assets.Fetcher
	parser     DocumentParser
	backend    renderer.Backend
}

func NewModelLoader(config *ModelLoaderConfig, cache *ModelCache, sharedPool *SharedPool, fetcher assets.Fetcher, parser DocumentParser, backend renderer.Backend) *ModelLoader {
	if config == nil {
		config = &ModelLoaderConfig{PoolingEnabled: true}
	}
	return &ModelLoader{
		config:     config,
		cache:      cache,
		sharedPool: sharedPool,
		fetcher:    fetcher,
		parser:     parser,
		backend:    backend,
	}
}

/** @brief Loads a new model instance of locator. */
func (ml *ModelLoader) Load(ctx context.Context, locator string, opts LoadOptions) (*Model, error) {
	model := NewModel(locator)
	if err := ml.LoadInto(ctx, model, opts); err != nil {
		return nil, err
	}
	return model, nil
}

/**
 * @brief Loads the document of model's locator and bakes its meshes. On failure
 * nothing built by this call stays alive and the model is left unloaded.
 */
func (ml *ModelLoader) LoadInto(ctx context.Context, model *Model, opts LoadOptions) error {
	if model.IsLoaded() {
		return fmt.Errorf("model %s: %w", model.ID, core.ErrModelLoaded)
	}
	locator := model.Locator()

	res, err := ml.acquireResource(ctx, locator)
	if err != nil {
		core.LogError("failed to load model '%s': %s", locator, err)
		return err
	}

	meshes, err := ml.buildMeshes(res)
	if err != nil {
		ml.discard(locator, meshes, nil)
		core.LogError("failed to build model '%s': %s", locator, err)
		return err
	}

	var handle *PoolHandle
	usePool := opts.UseWorkers && ml.config.PoolingEnabled && ml.sharedPool != nil
	if usePool {
		handle, err = ml.sharedPool.Acquire()
		if err == nil {
			for _, mesh := range meshes {
				if err = mesh.RegisterWithPool(handle.Pool()); err != nil {
					break
				}
			}
		}
		if err != nil {
			ml.discard(locator, meshes, handle)
			core.LogError("failed to register model '%s' with the transform pool: %s", locator, err)
			return err
		}
	}

	model.mu.Lock()
	model.meshes = meshes
	model.resource = res
	model.cache = ml.cache
	model.sharedPool = ml.sharedPool
	model.poolHandle = handle
	model.usingPool = usePool
	model.lastApplied = nil
	model.loaded = true
	model.mu.Unlock()

	core.LogInfo("model %s loaded from '%s' (%d meshes, pooled: %t)", model.ID, locator, len(meshes), usePool)
	return nil
}

func (ml *ModelLoader) discard(locator string, meshes []*MeshResource, handle *PoolHandle) {
	for _, mesh := range meshes {
		mesh.Release()
	}
	if handle != nil {
		handle.Release()
	}
	ml.cache.Release(locator, ml.backend.DeleteTexture)
}

// acquireResource returns a referenced cache entry for locator, fetching it
// only when no other caller already has or is loading it. Joiners receive the
// owner's outcome and never fetch themselves.
func (ml *ModelLoader) acquireResource(ctx context.Context, locator string) (*CachedResource, error) {
	res, pending, owner := ml.cache.lookupOrReserve(locator)
	if res != nil {
		return res, nil
	}

	if !owner {
		res, err := pending.Wait(ctx)
		if err != nil {
			ml.cache.leave(locator, pending, ml.backend.DeleteTexture)
			return nil, err
		}
		return res, nil
	}

	res, err := ml.fetchResource(ctx, locator)
	if err != nil {
		ml.cache.ClearInFlight(locator, err)
		return nil, err
	}
	ml.cache.Commit(locator, res)
	return res, nil
}

func (ml *ModelLoader) fetchResource(ctx context.Context, locator string) (*CachedResource, error) {
	data, err := ml.fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("fetching '%s': %w", locator, err)
	}
	doc, err := ml.parser.Parse(ctx, locator, data)
	if err != nil {
		return nil, err
	}
	textures, err := ml.loadTextures(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &CachedResource{
		Locator:  locator,
		Document: doc,
		Textures: textures,
	}, nil
}

// loadTextures decodes every texture referenced by a material concurrently and
// uploads the results in document order.
func (ml *ModelLoader) loadTextures(ctx context.Context, doc resources.Document) (map[int]*metadata.Texture, error) {
	referenced := make(map[int]bool)
	for _, mat := range doc.ListMaterials() {
		if idx, ok := mat.BaseColorTexture(); ok {
			referenced[idx] = true
		}
	}

	var sources []resources.Texture
	for _, tex := range doc.ListTextures() {
		if referenced[tex.Index()] {
			sources = append(sources, tex)
		}
	}
	if len(sources) == 0 {
		return map[int]*metadata.Texture{}, nil
	}

	images := make([]*image.RGBA, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(ml.config.DecodeConcurrency, 1))
	for i, tex := range sources {
		i, tex := i, tex
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, mimeType, err := tex.ReadImage()
			if err != nil {
				return fmt.Errorf("reading texture '%s': %w", tex.Name(), err)
			}
			img, err := loaders.DecodeImage(tex.Name(), data, mimeType)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	textures := make(map[int]*metadata.Texture, len(sources))
	for i, tex := range sources {
		uploaded, err := ml.backend.CreateStaticTexture(tex.Name(), images[i])
		if err != nil {
			for _, t := range textures {
				ml.backend.DeleteTexture(t)
			}
			return nil, fmt.Errorf("uploading texture '%s': %w", tex.Name(), err)
		}
		textures[tex.Index()] = uploaded
	}
	return textures, nil
}

// buildMeshes walks every scene of the document and bakes one mesh per
// triangle primitive. The meshes built so far are returned along with any error.
func (ml *ModelLoader) buildMeshes(res *CachedResource) ([]*MeshResource, error) {
	var meshes []*MeshResource
	for _, scene := range res.Document.ListScenes() {
		for _, root := range scene.ListRootNodes() {
			var err error
			meshes, err = ml.visitNode(res, root, math.NewMat4Identity(), 0, meshes)
			if err != nil {
				return meshes, err
			}
		}
	}
	return meshes, nil
}

func (ml *ModelLoader) visitNode(res *CachedResource, node resources.Node, parent math.Mat4, depth int, meshes []*MeshResource) ([]*MeshResource, error) {
	if depth > maxNodeDepth {
		return meshes, fmt.Errorf("node '%s' nested deeper than %d levels: %w", node.Name(), maxNodeDepth, core.ErrDocumentInvalid)
	}

	local, ok := node.Matrix()
	if !ok {
		local = math.NewMat4TRS(node.Translation(), node.Rotation().Normalize(), node.Scale())
	}
	world := parent.Mul(local)

	if mesh := node.Mesh(); mesh != nil {
		for i, prim := range mesh.ListPrimitives() {
			if prim.Mode() != resources.DrawModeTriangles {
				core.LogWarn("skipping %s primitive %d of mesh '%s'", prim.Mode(), i, mesh.Name())
				continue
			}
			mr, err := ml.bakePrimitive(res, prim, world)
			if err != nil {
				return meshes, fmt.Errorf("mesh '%s' primitive %d: %w", mesh.Name(), i, err)
			}
			meshes = append(meshes, mr)
		}
	}

	for _, child := range node.ListChildren() {
		var err error
		meshes, err = ml.visitNode(res, child, world, depth+1, meshes)
		if err != nil {
			return meshes, err
		}
	}
	return meshes, nil
}

func (ml *ModelLoader) bakePrimitive(res *CachedResource, prim resources.Primitive, world math.Mat4) (*MeshResource, error) {
	positions, err := prim.Positions()
	if err != nil {
		return nil, err
	}
	texCoords, err := prim.TexCoords()
	if err != nil {
		return nil, err
	}
	indices, err := prim.Indices()
	if err != nil {
		return nil, err
	}

	baked := math.TransformPositions(positions, world)

	var texture *metadata.Texture
	if mat := prim.Material(); mat != nil {
		if idx, ok := mat.BaseColorTexture(); ok {
			texture = res.Textures[idx]
		}
	}
	return NewMeshResource(ml.backend, baked, texCoords, indices, texture)
}
