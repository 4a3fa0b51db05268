package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-editor/engine/assets/loaders"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type AssetInfo struct {
	// Path relative to the asset root, slash separated.
	Path         string
	Type         metadata.ResourceType
	LastModified time.Time
}

// ChangeHandler is called from the watcher goroutine whenever a file
// under the asset root is created or written.
type ChangeHandler func(path string, assetType metadata.ResourceType)

type AssetManager struct {
	baseDir  string
	assets   map[string]AssetInfo
	loaders  map[metadata.ResourceType]Loader
	handlers []ChangeHandler

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(baseDir string) *AssetManager {
	am := &AssetManager{
		baseDir: filepath.Clean(baseDir),
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
	}

	// Register loaders
	shaders := &loaders.ShaderLoader{}
	am.registerLoader(metadata.ResourceTypeShader, shaders)
	am.registerLoader(metadata.ResourceTypeText, shaders)
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})

	return am
}

// Initialize indexes the asset root and, when watch is set, starts
// watching it and every sub-directory for changes.
func (am *AssetManager) Initialize(watch bool) error {
	if _, err := os.Stat(am.baseDir); err != nil {
		return fmt.Errorf("asset directory: %w", err)
	}
	if !watch {
		return am.watchRecursive(am.baseDir, false)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})

	go am.start()

	if err := am.addRecursive(am.baseDir); err != nil {
		return errors.Join(err, am.Shutdown())
	}
	core.LogInfo("watching '%s' for asset changes", am.baseDir)
	return nil
}

func (am *AssetManager) BaseDir() string {
	return am.baseDir
}

// OnChange registers a handler for created or modified assets.
func (am *AssetManager) OnChange(h ChangeHandler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.handlers = append(am.handlers, h)
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Info returns the indexed entry for a path relative to the asset root.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.ToSlash(path)]
	return info, ok
}

// LoadAsset reads the asset at path, relative to the asset root, with
// the loader registered for resourceType.
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Asset, error) {
	loader, loaderExists := am.loaders[resourceType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %d", resourceType)
	}

	fullPath := filepath.Join(am.baseDir, filepath.FromSlash(path))
	asset, err := loader.Load(fullPath, resourceType, params)
	if err != nil {
		return nil, err
	}

	if fi, err := os.Stat(fullPath); err == nil {
		am.mutex.Lock()
		am.assets[filepath.ToSlash(path)] = AssetInfo{
			Path:         filepath.ToSlash(path),
			Type:         resourceType,
			LastModified: fi.ModTime(),
		}
		am.mutex.Unlock()
	}
	return asset, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Asset) error {
	if asset == nil {
		return errors.New("unload called with nil asset")
	}
	loader, ok := am.loaders[determineAssetType(asset.FullPath)]
	if !ok {
		loader = am.loaders[metadata.ResourceTypeText]
	}
	return loader.Unload(asset)
}

// Shutdown stops the watcher, if any. Safe to call more than once.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed || am.fsnotify == nil {
		am.isClosed = true
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
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
						core.LogWarn("cannot watch '%s': %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name, true)
			}
			// A deleted path cannot be stat'ed, drop it from the index and the watch list
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogWarn("closing asset watcher: %s", err)
			}
			return
		}
	}
}

// watchRecursive indexes every file under path and, when a watcher is
// running, adds (or removes) each directory to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify == nil {
				return nil
			}
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath, false)
		return nil
	})
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.baseDir, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string, notify bool) {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return
	}
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	modified := time.Now()
	if fi, err := os.Stat(path); err == nil {
		modified = fi.ModTime()
	}

	am.mutex.Lock()
	am.assets[rel] = AssetInfo{
		Path:         rel,
		Type:         assetType,
		LastModified: modified,
	}
	handlers := append([]ChangeHandler(nil), am.handlers...)
	am.mutex.Unlock()

	if !notify {
		return
	}
	core.LogDebug("asset changed: %s", rel)
	for _, h := range handlers {
		h(rel, assetType)
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, rel)
}

func determineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".wgsl", ".hlsl":
		return metadata.ResourceTypeShader
	case ".spv", ".dxil", ".dxbc":
		return metadata.ResourceTypeBinary
	case ".txt", ".toml":
		return metadata.ResourceTypeText
	default:
		return metadata.ResourceTypeNone
	}
}
