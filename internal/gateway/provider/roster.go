package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"arbiter/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// 中文说明：
// Roster：运行期顾问花名册。监听 yaml 文件变化，支持不重启地
// 启停顾问、覆盖静态权重（作为 bandit 权重之外的人工兜底）。

type rosterEntry struct {
	ID      string   `yaml:"id"`
	Enabled *bool    `yaml:"enabled"`
	Weight  *float64 `yaml:"weight"`
}

type rosterFile struct {
	Advisors []rosterEntry `yaml:"advisors"`
}

// RosterSnapshot 是某一时刻的人工覆盖视图。
type RosterSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Weights  map[string]float64
}

type Roster struct {
	path     string
	registry *Registry

	mu       sync.RWMutex
	snapshot RosterSnapshot

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRoster 加载花名册并开始监听文件变化。path 为空时返回 nil（功能关闭）。
func NewRoster(path string, registry *Registry) (*Roster, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	r := &Roster{path: path, registry: registry, done: make(chan struct{})}
	if err := r.reload(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("roster watcher: %w", err)
	}
	// 监听目录而不是文件：编辑器原子替换会让文件级 watch 失效
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("roster watch %s: %w", path, err)
	}
	r.watcher = w
	go r.watchLoop()
	return r, nil
}

func (r *Roster) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading roster failed (%s): %w", r.path, err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing roster failed (%s): %w", r.path, err)
	}
	weights := make(map[string]float64)
	for _, entry := range file.Advisors {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		if entry.Enabled != nil {
			if !r.registry.setEnabled(id, *entry.Enabled) {
				logger.Warnf("roster 引用了未配置的顾问 %q，忽略", id)
				continue
			}
		}
		if entry.Weight != nil && *entry.Weight > 0 {
			weights[id] = *entry.Weight
		}
	}
	r.mu.Lock()
	r.snapshot = RosterSnapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Weights:  weights,
	}
	r.mu.Unlock()
	logger.Infof("roster 加载完成 version=%d overrides=%d", r.snapshot.Version, len(weights))
	return nil
}

func (r *Roster) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 编辑器通常触发多个事件，合并 200ms 内的抖动
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := r.reload(); err != nil {
					logger.Warnf("roster 热加载失败: %v", err)
				}
			})
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("roster watcher error: %v", err)
		}
	}
}

// Snapshot 返回当前人工权重覆盖。
func (r *Roster) Snapshot() RosterSnapshot {
	if r == nil {
		return RosterSnapshot{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.snapshot
	weights := make(map[string]float64, len(snap.Weights))
	for k, v := range snap.Weights {
		weights[k] = v
	}
	snap.Weights = weights
	return snap
}

func (r *Roster) Close() error {
	if r == nil {
		return nil
	}
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
