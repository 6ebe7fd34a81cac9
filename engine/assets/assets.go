package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/scenebake/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeScene
	AssetTypeBinary
	AssetTypeImage
)

type AssetInfo struct {
	Path     string
	Type     AssetType
	Modified time.Time
}

// Fetcher returns the raw bytes addressed by a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

type AssetManager struct {
	rootDir string
	assets  map[string]AssetInfo

	mutex sync.RWMutex

	done       chan struct{}
	stopped    chan struct{}
	fsnotify   *fsnotify.Watcher
	isClosed   bool
	httpClient *http.Client
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:     make(map[string]AssetInfo),
		fsnotify:   fsWatch,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Initialize indexes every asset below assetsDir and keeps the index current
// while the manager is running.
func (am *AssetManager) Initialize(assetsDir string) error {
	abs, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.rootDir = abs

	if err := am.addRecursive(abs); err != nil {
		return err
	}
	go am.start()

	core.LogInfo("asset manager watching '%s' (%d assets indexed)", abs, am.Count())
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	if am.rootDir != "" {
		<-am.stopped
		return nil
	}
	return am.fsnotify.Close()
}

// Fetch reads the bytes behind locator. http(s) locators are downloaded,
// absolute paths are read directly and anything else must be an indexed asset
// relative to the assets directory.
func (am *AssetManager) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if isRemote(locator) {
		return am.fetchRemote(ctx, locator)
	}

	fullPath, err := am.Resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", locator, core.ErrAssetNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Resolve maps a local locator to a file path.
func (am *AssetManager) Resolve(locator string) (string, error) {
	if filepath.IsAbs(locator) {
		return filepath.Clean(locator), nil
	}

	rel := path.Clean(filepath.ToSlash(locator))
	am.mutex.RLock()
	_, exists := am.assets[rel]
	am.mutex.RUnlock()
	if !exists {
		return "", fmt.Errorf("%s: %w", locator, core.ErrAssetNotFound)
	}
	return filepath.Join(am.rootDir, filepath.FromSlash(rel)), nil
}

// Lookup returns the index entry for a relative locator.
func (am *AssetManager) Lookup(locator string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path.Clean(filepath.ToSlash(locator))]
	return info, ok
}

// Count returns the number of indexed assets.
func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) fetchRemote(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := am.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", locator, core.ErrAssetNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", locator, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return core.ErrWatcherClosed
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch new asset directory '%s': %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			//Can't stat a deleted directory, so just pretend that it's always a directory and
			//try to remove from the watch list...  we really have no clue if it's a directory or not...
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes every file found on the way.
func (am *AssetManager) watchRecursive(root string, unWatch bool) error {
	return filepath.Walk(root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(fullPath string) {
	assetType := determineAssetType(fullPath)
	if assetType == AssetTypeNone {
		return
	}
	rel, ok := am.relative(fullPath)
	if !ok {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	_, known := am.assets[rel]
	am.assets[rel] = AssetInfo{
		Path:     rel,
		Type:     assetType,
		Modified: time.Now(),
	}
	if known {
		core.LogDebug("asset '%s' changed on disk", rel)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(fullPath string) {
	rel, ok := am.relative(fullPath)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, rel)
}

func (am *AssetManager) relative(fullPath string) (string, bool) {
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(am.rootDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func determineAssetType(p string) AssetType {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".gltf", ".glb":
		return AssetTypeScene
	case ".bin":
		return AssetTypeBinary
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tif", ".tiff":
		return AssetTypeImage
	default:
		return AssetTypeNone
	}
}
