package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// RuntimeManager watches an optional runtime-override file (YAML or JSON)
// and republishes a validated Runtime to subscribers on change. If path is
// empty, Load/Watch are no-ops and Get always returns DefaultRuntime.
type RuntimeManager struct {
	path string

	mu  sync.RWMutex
	cfg Runtime

	subsMu sync.Mutex
	subs   []chan Runtime

	log       logx.Logger
	validator func(ctx context.Context, cfg Runtime) error

	lastHash uint64
}

func NewRuntimeManager(path string, log logx.Logger) *RuntimeManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RuntimeManager{path: path, cfg: DefaultRuntime(), log: log}
}

func (m *RuntimeManager) SetValidator(fn func(ctx context.Context, cfg Runtime) error) {
	m.validator = fn
}

func (m *RuntimeManager) parse() (Runtime, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return Runtime{}, err
	}
	jb, err := jsonBytesFromFile(m.path, b)
	if err != nil {
		return Runtime{}, err
	}

	cfg := DefaultRuntime()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Runtime{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Runtime{}, fmt.Errorf("invalid runtime config: trailing data")
		}
		return Runtime{}, err
	}
	if err := validateDurations(cfg); err != nil {
		return Runtime{}, err
	}
	return cfg, nil
}

// jsonBytesFromFile normalizes an override file to JSON bytes so parse can
// use a single strict decoder (DisallowUnknownFields) regardless of
// whether the file on disk is YAML or JSON.
func jsonBytesFromFile(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = stringifyYAMLKeys(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// stringifyYAMLKeys recurses into a yaml.Unmarshal result and coerces any
// map[any]any produced by the YAML decoder into map[string]any, since
// encoding/json cannot marshal non-string map keys.
func stringifyYAMLKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyYAMLKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringifyYAMLKeys(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringifyYAMLKeys(x[i])
		}
		return x
	default:
		return in
	}
}

func (m *RuntimeManager) commit(cfg Runtime) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashRuntime(cfg)
	m.mu.Unlock()
}

func hashRuntime(cfg Runtime) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Load reads and commits the file once. If path is empty, it commits
// DefaultRuntime and returns it.
func (m *RuntimeManager) Load() (Runtime, error) {
	if strings.TrimSpace(m.path) == "" {
		cfg := DefaultRuntime()
		m.commit(cfg)
		return cfg, nil
	}
	cfg, err := m.parse()
	if err != nil {
		return Runtime{}, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *RuntimeManager) Get() Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *RuntimeManager) Subscribe(buffer int) chan Runtime {
	ch := make(chan Runtime, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *RuntimeManager) Unsubscribe(ch chan Runtime) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *RuntimeManager) publish(cfg Runtime) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug("runtime config update dropped, subscriber slow", logx.Int("queue_cap", cap(ch)))
			}
		}
	}
}

// Watch is a no-op if no override path was configured, otherwise it mirrors
// the fsnotify self-healing watch loop: debounce writes, validate before
// commit, and recreate the watcher with backoff if it breaks.
func (m *RuntimeManager) Watch(ctx context.Context) error {
	if strings.TrimSpace(m.path) == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, err := m.parse()
			if err != nil {
				m.log.Warn("runtime config parse failed", logx.String("path", m.path), logx.Err(err))
				return
			}

			h := hashRuntime(cfg)
			m.mu.RLock()
			unchanged := h != 0 && h == m.lastHash
			m.mu.RUnlock()
			if unchanged {
				return
			}

			if m.validator != nil {
				vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := m.validator(vctx, cfg)
				cancel()
				if err != nil {
					m.log.Warn("runtime config rejected", logx.String("path", m.path), logx.Err(err))
					return
				}
			}

			m.commit(cfg)
			m.publish(cfg)
			m.log.Info("runtime config reloaded", logx.String("path", m.path))
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("runtime config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !m.sleepBackoff(ctx, &backoff, rng, restartBackoffMax) {
				return nil
			}
			continue
		}

		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("runtime config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !m.sleepBackoff(ctx, &backoff, rng, restartBackoffMax) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					debounce()
					continue
				}
				m.log.Warn("runtime config watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		if !m.sleepBackoff(ctx, &backoff, rng, restartBackoffMax) {
			return nil
		}
	}
}

func (m *RuntimeManager) sleepBackoff(ctx context.Context, backoff *time.Duration, rng *rand.Rand, max time.Duration) bool {
	wait := *backoff + time.Duration(rng.Int63n(int64(*backoff/2)+1))
	if *backoff < max {
		*backoff *= 2
		if *backoff > max {
			*backoff = max
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}
