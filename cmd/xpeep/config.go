package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/peephole"
	"github.com/xcalcc/llvm-project/internal/trace"
)

const configFileName = "xpeep.toml"

type fileConfig struct {
	Target targetConfig `toml:"target"`
	Pass   passConfig   `toml:"pass"`
	Driver driverConfig `toml:"driver"`
	Trace  traceConfig  `toml:"trace"`
}

type targetConfig struct {
	Zero string `toml:"zero"`
}

type passConfig struct {
	JumpToReturn          bool `toml:"jump_to_return"`
	AssignAfterBranchTest bool `toml:"assign_after_branch_test"`
	Rounds                int  `toml:"rounds"`
}

type driverConfig struct {
	Jobs  int  `toml:"jobs"`
	Cache bool `toml:"cache"`
}

type traceConfig struct {
	Level string `toml:"level"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Target: targetConfig{Zero: "zero"},
		Pass:   passConfig{JumpToReturn: true, AssignAfterBranchTest: true, Rounds: 1},
		Trace:  traceConfig{Level: "off"},
	}
}

// settings is the effective configuration of one run.
type settings struct {
	Path       string // config file in effect, "" for built-in defaults
	Zero       machine.Reg
	Pass       peephole.Options
	Rounds     int
	Jobs       int
	Cache      bool
	TraceLevel string
}

func (c fileConfig) settings() (settings, error) {
	zero, ok := machine.ParseReg(strings.TrimSpace(c.Target.Zero))
	if !ok {
		return settings{}, fmt.Errorf("[target].zero: unknown register %q", c.Target.Zero)
	}
	if c.Pass.Rounds < 1 {
		return settings{}, fmt.Errorf("[pass].rounds must be at least 1, got %d", c.Pass.Rounds)
	}
	if c.Driver.Jobs < 0 {
		return settings{}, fmt.Errorf("[driver].jobs must not be negative, got %d", c.Driver.Jobs)
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return settings{}, fmt.Errorf("[trace].level: %w", err)
	}
	return settings{
		Zero: zero,
		Pass: peephole.Options{
			DisableJumpToReturn:    !c.Pass.JumpToReturn,
			DisableAssignAfterTest: !c.Pass.AssignAfterBranchTest,
		},
		Rounds:     c.Pass.Rounds,
		Jobs:       c.Driver.Jobs,
		Cache:      c.Driver.Cache,
		TraceLevel: c.Trace.Level,
	}, nil
}

// findConfig walks up from startDir looking for xpeep.toml.
func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fileConfig{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	return cfg, nil
}

// resolveSettings merges defaults, xpeep.toml and explicitly set flags, in
// that order of precedence from lowest to highest.
func resolveSettings(cmd *cobra.Command, inputs []string) (settings, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return settings{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		start := "."
		if len(inputs) > 0 && inputs[0] != "-" {
			start = filepath.Dir(inputs[0])
		}
		found, ok, err := findConfig(start)
		if err != nil {
			return settings{}, err
		}
		if ok {
			path = found
		}
	}

	cfg := defaultFileConfig()
	if path != "" {
		if cfg, err = loadConfig(path); err != nil {
			return settings{}, err
		}
	}
	s, err := cfg.settings()
	if err != nil {
		if path != "" {
			return settings{}, fmt.Errorf("%s: %w", path, err)
		}
		return settings{}, err
	}
	s.Path = path

	if err := applyFlagOverrides(cmd, &s); err != nil {
		return settings{}, err
	}
	return s, nil
}

func applyFlagOverrides(cmd *cobra.Command, s *settings) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("jobs") {
		jobs, err := flags.GetInt("jobs")
		if err != nil {
			return fmt.Errorf("failed to get jobs flag: %w", err)
		}
		if jobs < 0 {
			return fmt.Errorf("--jobs must not be negative")
		}
		s.Jobs = jobs
	}
	if changed("rounds") {
		rounds, err := flags.GetInt("rounds")
		if err != nil {
			return fmt.Errorf("failed to get rounds flag: %w", err)
		}
		if rounds < 1 {
			return fmt.Errorf("--rounds must be at least 1")
		}
		s.Rounds = rounds
	}
	if changed("cache") {
		cache, err := flags.GetBool("cache")
		if err != nil {
			return fmt.Errorf("failed to get cache flag: %w", err)
		}
		s.Cache = cache
	}
	if changed("no-jump-to-return") {
		off, err := flags.GetBool("no-jump-to-return")
		if err != nil {
			return fmt.Errorf("failed to get no-jump-to-return flag: %w", err)
		}
		s.Pass.DisableJumpToReturn = off
	}
	if changed("no-assign-after-test") {
		off, err := flags.GetBool("no-assign-after-test")
		if err != nil {
			return fmt.Errorf("failed to get no-assign-after-test flag: %w", err)
		}
		s.Pass.DisableAssignAfterTest = off
	}
	return nil
}
