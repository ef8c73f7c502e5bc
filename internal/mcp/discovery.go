package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arborio/agentcore/internal/logging"
)

// entryPatterns are the recognized server entry scripts, in preference
// order: root-level scripts win over the same names nested under src/.
var entryPatterns = []string{"server.*", "index.*", "src/server.*", "src/index.*"}

// defaultRuntime launches an entry script when the server directory's
// config doesn't override the command.
const defaultRuntime = "node"

// Candidate is a discovered server directory with its merged config.
type Candidate struct {
	Name   string
	Dir    string
	Entry  string
	Config *Config
}

// Discover scans serversDir for candidate MCP servers. Each subdirectory
// containing a recognized entry script is a candidate; its config is the
// discovery default merged with the directory's own config.json (when
// present) and then with the caller's explicit entry for that name
// (explicit wins field by field).
func Discover(serversDir string, explicit map[string]*Config) ([]Candidate, error) {
	entries, err := os.ReadDir(serversDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var found []Candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(serversDir, e.Name())
		entry := findEntry(dir)
		if entry == "" {
			continue
		}

		cfg := defaultConfig(entry)
		mergeConfig(cfg, readDirConfig(dir))
		mergeConfig(cfg, explicit[e.Name()])

		found = append(found, Candidate{
			Name:   e.Name(),
			Dir:    dir,
			Entry:  entry,
			Config: cfg,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// findEntry returns the preferred entry script in dir, or "" when none of
// the recognized patterns match.
func findEntry(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() == "src" {
			if sub, err := os.ReadDir(filepath.Join(dir, "src")); err == nil {
				for _, s := range sub {
					if !s.IsDir() {
						names = append(names, filepath.Join("src", s.Name()))
					}
				}
			}
			continue
		}
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, pattern := range entryPatterns {
		for _, name := range names {
			if ok, _ := doublestar.Match(pattern, filepath.ToSlash(name)); ok {
				return filepath.Join(dir, name)
			}
		}
	}
	return ""
}

func defaultConfig(entry string) *Config {
	return &Config{
		Enabled: true,
		Type:    TransportLocal,
		Command: []string{defaultRuntime, entry},
	}
}

// readDirConfig loads dir/config.json, returning nil when absent or
// unreadable (discovery proceeds on the defaults).
func readDirConfig(dir string) *Config {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil
	}
	var raw struct {
		Enabled     *bool             `json:"enabled"`
		Timeout     int               `json:"timeout"`
		Environment map[string]string `json:"environment"`
		Command     []string          `json:"command"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Logger.Warn().Err(err).Str("dir", dir).Msg("ignoring malformed mcp server config")
		return nil
	}

	cfg := &Config{
		Timeout:     raw.Timeout,
		Environment: raw.Environment,
		Command:     raw.Command,
	}
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	} else {
		cfg.Enabled = true
	}
	return cfg
}

// mergeConfig overlays src onto dst, field by field; zero-valued src fields
// leave dst untouched. src.Enabled always applies (false is meaningful).
func mergeConfig(dst, src *Config) {
	if src == nil {
		return
	}
	dst.Enabled = src.Enabled
	if src.Type != "" {
		dst.Type = src.Type
	}
	if len(src.Command) > 0 {
		dst.Command = src.Command
	}
	if src.URL != "" {
		dst.URL = src.URL
	}
	if len(src.Headers) > 0 {
		dst.Headers = src.Headers
	}
	if len(src.Environment) > 0 {
		dst.Environment = src.Environment
	}
	if src.Timeout > 0 {
		dst.Timeout = src.Timeout
	}
}
