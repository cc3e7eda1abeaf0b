package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/alertstream/common/logging"
)

// sourceNamespace derives stable IDs for file sources declared without one.
var sourceNamespace = uuid.MustParse("6f1c2a52-3a4b-4c1e-9d2f-7e0b5a8c9d10")

// fileSource is one entry of the sources YAML file. The data type is declared
// inline instead of in a separate mapping, and sources are active unless
// "active: false" is given.
type fileSource struct {
	SourceConfig `yaml:",inline"`
	Active       *bool  `yaml:"active"`
	DataType     string `yaml:"data_type"`
}

type fileDocument struct {
	Sources []fileSource `yaml:"sources"`
}

type snapshot struct {
	sources []SourceConfig
	types   map[uuid.UUID]DataType
}

// FileRegistry reads sources from a YAML file. Every read re-parses the file so
// that Refresh always sees the current contents; Watch adds change callbacks.
type FileRegistry struct {
	path     string
	logger   *logging.Logger
	debounce time.Duration

	mu       sync.RWMutex
	current  snapshot
	onChange []func()
}

// NewFileRegistry loads path once so configuration errors surface at startup.
func NewFileRegistry(path string, logger *logging.Logger) (*FileRegistry, error) {
	r := &FileRegistry{
		path:     path,
		logger:   logging.OrDefault(logger).With("component", "file_registry", "path", path),
		debounce: 250 * time.Millisecond,
	}
	if _, err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRegistry) ListActiveSources(ctx context.Context) ([]SourceConfig, error) {
	snap, err := r.reload()
	if err != nil {
		return nil, err
	}
	var active []SourceConfig
	for _, s := range snap.sources {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (r *FileRegistry) GetSourceTypeMapping(ctx context.Context) (map[uuid.UUID]DataType, error) {
	snap, err := r.reload()
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]DataType, len(snap.types))
	for id, t := range snap.types {
		out[id] = t
	}
	return out, nil
}

// Sources returns the last successfully parsed source list.
func (r *FileRegistry) Sources() []SourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SourceConfig(nil), r.current.sources...)
}

// OnChange registers a callback invoked after the file changes on disk.
func (r *FileRegistry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Watch starts watching the file until ctx is done. The parent directory is
// watched so editors that replace the file atomically are still observed.
func (r *FileRegistry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry watcher: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("registry watcher add %s: %w", dir, err)
	}

	target := filepath.Clean(r.path)
	go func() {
		defer w.Close()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(r.debounce, r.fire)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("registry watcher error", logging.Error(err))
			}
		}
	}()

	return nil
}

func (r *FileRegistry) fire() {
	if _, err := r.reload(); err != nil {
		r.logger.Warn("registry file changed but could not be parsed; keeping previous sources", logging.Error(err))
		return
	}
	r.logger.Info("registry file changed")

	r.mu.RLock()
	callbacks := make([]func(), len(r.onChange))
	copy(callbacks, r.onChange)
	r.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (r *FileRegistry) reload() (snapshot, error) {
	snap, err := r.load()
	if err != nil {
		return snapshot{}, err
	}
	r.mu.Lock()
	r.current = snap
	r.mu.Unlock()
	return snap, nil
}

func (r *FileRegistry) load() (snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return snapshot{}, fmt.Errorf("read registry %s: %w", r.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return snapshot{}, fmt.Errorf("parse registry %s: %w", r.path, err)
	}

	snap := snapshot{types: make(map[uuid.UUID]DataType)}
	seen := make(map[uuid.UUID]string, len(doc.Sources))
	for i, fs := range doc.Sources {
		src := fs.SourceConfig
		src.Active = fs.Active == nil || *fs.Active
		if src.ID == uuid.Nil {
			src.ID = uuid.NewSHA1(sourceNamespace, []byte(src.Name))
		}
		src.ApplyDefaults()
		if err := src.Validate(); err != nil {
			return snapshot{}, fmt.Errorf("registry %s entry %d: %w", r.path, i, err)
		}
		if prev, dup := seen[src.ID]; dup {
			return snapshot{}, fmt.Errorf("registry %s: sources %q and %q share id %s", r.path, prev, src.Name, src.ID)
		}
		seen[src.ID] = src.Name

		dataType, err := ParseDataType(fs.DataType)
		if err != nil {
			return snapshot{}, fmt.Errorf("registry %s source %q: %w", r.path, src.Name, err)
		}
		if dataType != DataTypeNone {
			snap.types[src.ID] = dataType
		}
		snap.sources = append(snap.sources, src)
	}

	return snap, nil
}
