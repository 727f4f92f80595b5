// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the daemon's YAML settings.  A path may name one
// file or a directory of .yaml/.yml files merged in lexical order, later
// files overriding earlier ones.  Keys are dotted paths into the merged
// tree.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"dario.cat/mergo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type C struct {
	path     string
	files    []string
	Settings map[string]any
	defaults map[string]any

	callbacks []func(*C)
	l         *logrus.Logger
	mu        sync.Mutex
}

func NewC(l *logrus.Logger) *C {
	return &C{Settings: make(map[string]any), l: l}
}

func (c *C) Files() []string { return c.files }

// SetDefaults fills keys the loaded files leave unset.  The defaults are
// kept and applied again on reload.
func (c *C) SetDefaults(d map[string]any) error {
	c.defaults = d
	return c.apply_defaults()
}

// apply_defaults lays the settings over a copy of the defaults.  Values
// set explicitly win even when they are false, zero or empty.
func (c *C) apply_defaults() error {
	if c.defaults == nil {
		return nil
	}
	m := copy_tree(c.defaults)
	if len(c.Settings) > 0 {
		if err := mergo.Merge(&m, c.Settings, mergo.WithOverride); err != nil {
			return err
		}
	}
	c.Settings = m
	return nil
}

func copy_tree(m map[string]any) map[string]any {
	r := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case map[string]any:
			r[k] = copy_tree(x)
		case []any:
			r[k] = append([]any(nil), x...)
		default:
			r[k] = v
		}
	}
	return r
}

// Load reads every config file found at path.
func (c *C) Load(path string) (err error) {
	c.path = path
	c.files = nil
	if err = c.resolve(path, true); err != nil {
		return
	}
	if len(c.files) == 0 {
		return fmt.Errorf("no config files found at %s", path)
	}
	sort.Strings(c.files)

	var m map[string]any
	for _, f := range c.files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		var nm map[string]any
		if err = yaml.Unmarshal(b, &nm); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if nm == nil {
			continue
		}
		if m == nil {
			m = nm
			continue
		}
		if err = mergo.Merge(&m, nm, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	if m == nil {
		m = make(map[string]any)
	}
	c.Settings = m
	return c.apply_defaults()
}

func (c *C) LoadString(raw string) error {
	if raw == "" {
		return errors.New("empty configuration")
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(raw), &m); err != nil {
		return err
	}
	c.Settings = m
	return c.apply_defaults()
}

// RegisterReloadCallback adds f to the functions run after a reload.
func (c *C) RegisterReloadCallback(f func(*C)) {
	c.callbacks = append(c.callbacks, f)
}

// ReloadConfig reads the files again.  Callbacks are not run when the
// new files fail to load; the old settings stay.
func (c *C) ReloadConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Settings
	if err := c.Load(c.path); err != nil {
		c.Settings = old
		c.l.WithField("config_path", c.path).WithError(err).Error("config reload failed")
		return
	}
	for _, f := range c.callbacks {
		f(c)
	}
}

// CatchHUP reloads on SIGHUP until ctx is done.
func (c *C) CatchHUP(ctx context.Context) {
	if c.path == "" {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				c.l.Info("caught HUP, reloading config")
				c.ReloadConfig()
			}
		}
	}()
}

func (c *C) Get(k string) any { return get(k, c.Settings) }

func (c *C) IsSet(k string) bool { return c.Get(k) != nil }

// GetString returns the value of k formatted as a string, or d.
func (c *C) GetString(k, d string) string {
	r := c.Get(k)
	if r == nil {
		return d
	}
	return fmt.Sprintf("%v", r)
}

func (c *C) GetInt(k string, d int) int {
	v, err := strconv.Atoi(c.GetString(k, strconv.Itoa(d)))
	if err != nil {
		return d
	}
	return v
}

// GetBool also accepts y/yes and n/no.
func (c *C) GetBool(k string, d bool) bool {
	r := strings.ToLower(c.GetString(k, strconv.FormatBool(d)))
	if v, err := strconv.ParseBool(r); err == nil {
		return v
	}
	switch r {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return d
}

func (c *C) GetDuration(k string, d time.Duration) time.Duration {
	v, err := time.ParseDuration(c.GetString(k, ""))
	if err != nil {
		return d
	}
	return v
}

func get(k string, v any) any {
	for _, p := range strings.Split(k, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if v, ok = m[p]; !ok {
			return nil
		}
	}
	return v
}

// resolve collects config files under path.  Files found by walking a
// directory must end in .yaml or .yml; a file named directly need not.
func (c *C) resolve(path string, direct bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		if direct {
			return err
		}
		return nil
	}
	if !fi.IsDir() {
		if ext := filepath.Ext(path); !direct && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		ap, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		c.files = append(c.files, ap)
		return nil
	}
	names, err := read_dir_names(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, n := range names {
		if err = c.resolve(filepath.Join(path, n), false); err != nil {
			return err
		}
	}
	return nil
}

func read_dir_names(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
