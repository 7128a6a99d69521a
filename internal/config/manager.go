package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "cronwait/pkg/logx"
)

// ConfigManager loads the config file, keeps the current value, and
// republishes it to subscribers when the file changes on disk.
type ConfigManager struct {
	path   string
	getenv Getenv
	log    logx.Logger

	// Extra check run on reload after Validate.
	validator func(ctx context.Context, cfg *Config) error

	debounce time.Duration

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	subs subscribers
}

// NewConfigManager returns a manager for path. With an empty path only
// defaults and environment overrides are used and Watch does nothing.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:     strings.TrimSpace(path),
		getenv:   os.Getenv,
		debounce: 250 * time.Millisecond,
	}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

func (m *ConfigManager) SetGetenv(fn Getenv) { m.getenv = fn }

func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads the file (if any) over Default and applies env overrides.
// It neither validates nor commits.
func (m *ConfigManager) Parse() (*Config, error) {
	cfg := Default()
	if m.path != "" {
		raw, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		if err := decodeStrict(m.path, raw, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, m.getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict fills cfg from raw, rejecting unknown keys and anything
// after the first document.
func decodeStrict(path string, raw []byte, cfg *Config) error {
	doc, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%s config %s: %w", format, path, err)
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return fmt.Errorf("%s config %s: %w", format, path, err)
	default:
		return fmt.Errorf("%s config %s: trailing data after document", format, path)
	}
}

// Commit makes cfg the current config.
func (m *ConfigManager) Commit(cfg *Config) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

// Load parses, validates and commits.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel receiving every config committed by a reload.
// A slow subscriber loses its oldest pending config, never the newest.
func (m *ConfigManager) Subscribe(buffer int) chan *Config { return m.subs.add(buffer) }

// Unsubscribe removes ch and closes it.
func (m *ConfigManager) Unsubscribe(ch chan *Config) { m.subs.remove(ch) }

func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}

	if err := m.check(ctx, cfg); err != nil {
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
		return
	}

	m.Commit(cfg)
	if dropped := m.subs.send(cfg); dropped > 0 {
		m.log.Debug("config update dropped for slow subscribers", logx.Int("count", dropped))
	}
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%016x", h)))
}

func (m *ConfigManager) check(ctx context.Context, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.validator == nil {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.validator(vctx, cfg)
}

const (
	watchRetryMin = 250 * time.Millisecond
	watchRetryMax = 5 * time.Second
)

// Watch reloads the file whenever it changes until ctx ends. Events are
// debounced. The directory is watched (not the file) so editors that
// replace the file by rename are handled; if the watcher dies it is
// recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	trigger := make(chan struct{}, 1)
	go m.debounceLoop(ctx, trigger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	retry := watchRetryMin
	for ctx.Err() == nil {
		healthy, err := m.watchOnce(ctx, trigger)
		if ctx.Err() != nil {
			break
		}
		if healthy {
			retry = watchRetryMin
		}
		wait := retry + time.Duration(rng.Int63n(int64(retry/2)+1))
		retry = min(retry*2, watchRetryMax)
		m.log.Warn("config watcher stopped; restarting",
			logx.String("path", m.path),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return nil
}

// watchOnce runs one fsnotify watcher until it breaks or ctx ends.
// healthy reports whether the watcher was set up successfully.
func (m *ConfigManager) watchOnce(ctx context.Context, trigger chan<- struct{}) (healthy bool, err error) {
	dir, name := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	poke := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) && ev.Op != 0 {
				poke()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error channel closed")
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				poke()
				continue
			}
			if werr != nil {
				m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(werr))
			}
		}
	}
}

// debounceLoop reloads once the trigger has been quiet for m.debounce.
func (m *ConfigManager) debounceLoop(ctx context.Context, trigger <-chan struct{}) {
	t := time.NewTimer(time.Hour)
	t.Stop()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			t.Reset(m.debounce)
		case <-t.C:
			m.reload(ctx)
		}
	}
}

// subscribers fans committed configs out to buffered channels.
type subscribers struct {
	mu  sync.Mutex
	chs []chan *Config
}

func (s *subscribers) add(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	s.mu.Lock()
	s.chs = append(s.chs, ch)
	s.mu.Unlock()
	return ch
}

func (s *subscribers) remove(ch chan *Config) {
	if ch == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.chs {
		if c == ch {
			s.chs = append(s.chs[:i], s.chs[i+1:]...)
			close(ch)
			return
		}
	}
}

// send delivers cfg to every subscriber, evicting the oldest queued value
// when a buffer is full. It returns how many subscribers still missed it.
// The lock is held so remove cannot close a channel mid-send.
func (s *subscribers) send(cfg *Config) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			dropped++
		}
	}
	return dropped
}
