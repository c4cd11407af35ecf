package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/foveal/engine/assets/loaders"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

const (
	shaderDir       = "shaders"
	shaderExtension = ".spv"
	// Compilers write a module in several chunks; reload once they are done.
	defaultReloadDelay = 200 * time.Millisecond
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetManager loads shaders and images from the assets directory. Compiled
// shaders are cached by name until the watcher sees the file change.
type AssetManager struct {
	dir     string
	loaders map[metadata.ResourceType]Loader
	events  *core.EventQueue

	mutex   sync.RWMutex
	assets  map[string]AssetInfo
	shaders map[string][]uint32

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup

	reloadDelay   time.Duration
	pendingMutex  sync.Mutex
	pendingReload map[string]*time.Timer
}

func NewAssetManager(dir string, events *core.EventQueue) *AssetManager {
	am := &AssetManager{
		dir:     dir,
		loaders: make(map[metadata.ResourceType]Loader),
		events:  events,
		assets:  make(map[string]AssetInfo),
		shaders: make(map[string][]uint32),

		reloadDelay:   defaultReloadDelay,
		pendingReload: make(map[string]*time.Timer),
	}
	// Register loaders
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	return am
}

// Initialize indexes the assets directory and, when watch is set, starts
// reporting changes to compiled shaders as EVENT_CODE_SHADER_CHANGED.
func (am *AssetManager) Initialize(watch bool) error {
	if _, err := os.Stat(am.dir); err != nil {
		return core.Wrapf(err, "assets directory")
	}
	if !watch {
		return am.watchRecursive(am.dir, nil)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return core.Wrapf(err, "creating asset watcher")
	}
	am.fsnotify = fsWatch
	am.done = make(chan struct{})
	if err := am.watchRecursive(am.dir, fsWatch); err != nil {
		fsWatch.Close()
		return err
	}

	am.wg.Add(1)
	go am.start()
	core.LogInfo("watching %s for shader changes", am.dir)
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.pendingMutex.Lock()
	for path, timer := range am.pendingReload {
		timer.Stop()
		delete(am.pendingReload, path)
	}
	am.pendingMutex.Unlock()

	if am.fsnotify == nil {
		return nil
	}
	close(am.done)
	am.wg.Wait()
	err := am.fsnotify.Close()
	am.fsnotify = nil
	return err
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// ShaderPath maps a shader name such as "forward.vert" to its SPIR-V file.
func (am *AssetManager) ShaderPath(name string) string {
	return filepath.Join(am.dir, shaderDir, name+shaderExtension)
}

// Shader returns the SPIR-V words of the named shader, loading it on first
// use. The watcher swaps in new modules after they changed on disk.
func (am *AssetManager) Shader(name string) ([]uint32, error) {
	am.mutex.RLock()
	code, ok := am.shaders[name]
	am.mutex.RUnlock()
	if ok {
		return code, nil
	}

	res, err := am.load(am.ShaderPath(name), metadata.ResourceTypeBinary, nil)
	if err != nil {
		return nil, err
	}
	code = res.Data.([]uint32)

	am.mutex.Lock()
	am.shaders[name] = code
	am.mutex.Unlock()
	return code, nil
}

// Preload loads every named shader concurrently.
func (am *AssetManager) Preload(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := am.Shader(name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	core.LogDebug("preloaded %d shaders", len(names))
	return nil
}

// LoadTexture decodes an image relative to the assets directory.
func (am *AssetManager) LoadTexture(name string, flipY bool) (*metadata.TextureData, error) {
	res, err := am.load(filepath.Join(am.dir, name), metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: flipY})
	if err != nil {
		return nil, err
	}
	return res.Data.(*metadata.TextureData), nil
}

func (am *AssetManager) load(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, ok := am.loaders[resourceType]
	if !ok {
		return nil, core.Errorf("no loader registered for asset type %s", resourceType)
	}
	res, err := loader.Load(path, params)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       resourceType,
		LastLoaded: time.Now(),
	}
	am.mutex.Unlock()
	return res, nil
}

// Asset reports what is known about a file of the assets directory.
func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, am.fsnotify); err != nil {
						core.LogWarn("cannot watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-am.done:
			return
		}
	}
}

// watchRecursive indexes every file under path and adds each directory to
// the watcher, when there is one.
func (am *AssetManager) watchRecursive(path string, watcher *fsnotify.Watcher) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if watcher != nil {
				return watcher.Add(walkPath)
			}
			return nil
		}
		if t := determineAssetType(walkPath); t != metadata.ResourceTypeNone {
			am.mutex.Lock()
			if _, ok := am.assets[walkPath]; !ok {
				am.assets[walkPath] = AssetInfo{Path: walkPath, Type: t}
			}
			am.mutex.Unlock()
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: assetType}
	name, isShader := am.shaderName(path)
	am.mutex.Unlock()

	if isShader {
		am.scheduleShaderReload(path, name)
	}
}

// scheduleShaderReload reloads the shader once no write has been seen for
// reloadDelay.
func (am *AssetManager) scheduleShaderReload(path, name string) {
	am.pendingMutex.Lock()
	defer am.pendingMutex.Unlock()
	if timer, ok := am.pendingReload[path]; ok {
		timer.Reset(am.reloadDelay)
		return
	}
	am.pendingReload[path] = time.AfterFunc(am.reloadDelay, func() {
		am.pendingMutex.Lock()
		delete(am.pendingReload, path)
		am.pendingMutex.Unlock()
		am.reloadShader(path, name)
	})
}

// reloadShader replaces the cached module and reports the change. A module
// that does not load keeps the previous one in use and is not reported, so
// pipelines are never rebuilt from a broken file.
func (am *AssetManager) reloadShader(path, name string) {
	res, err := am.loaders[metadata.ResourceTypeBinary].Load(path, nil)
	if err != nil {
		core.LogWarn("shader '%s' not reloaded, keeping the previous module: %s", name, err)
		return
	}

	am.mutex.Lock()
	am.shaders[name] = res.Data.([]uint32)
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       metadata.ResourceTypeBinary,
		LastLoaded: time.Now(),
	}
	am.mutex.Unlock()

	core.LogInfo("shader '%s' changed", name)
	am.events.Push(core.Event{Code: core.EVENT_CODE_SHADER_CHANGED, Path: path})
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
	if name, ok := am.shaderName(path); ok {
		delete(am.shaders, name)
	}
}

func (am *AssetManager) shaderName(path string) (string, bool) {
	if filepath.Ext(path) != shaderExtension {
		return "", false
	}
	if filepath.Base(filepath.Dir(path)) != shaderDir {
		return "", false
	}
	return strings.TrimSuffix(filepath.Base(path), shaderExtension), true
}

func determineAssetType(path string) metadata.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case shaderExtension:
		return metadata.ResourceTypeBinary
	case ".png", ".jpg", ".jpeg", ".bmp", ".webp":
		return metadata.ResourceTypeImage
	default:
		return metadata.ResourceTypeNone
	}
}
