package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a data file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// DataFiles are the file names looked up in each game directory, in order.
var DataFiles = []string{"data.json", "data.yaml", "data.yml"}

// ErrInvalidConfig wraps every decoding or validation failure.
var ErrInvalidConfig = errors.New("invalid game config")

// =============================================================================
// LOADER
// =============================================================================

// Loader decodes and validates game data files.
type Loader struct {
	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(logger logrus.FieldLogger) *Loader {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Loader{validate: validator.New(), logger: logger}
}

// Parse decodes one data file.
func (l *Loader) Parse(data []byte, format Format) (*GameConfig, error) {
	var g GameConfig
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if err := l.validate.Struct(&g); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, describeValidation(err))
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	g.normalize()
	return &g, nil
}

// LoadFile decodes a data file, picking the format from its extension.
func (l *Loader) LoadFile(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	g, err := l.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// LoadDir loads every game directory under root. Directories without a data
// file are logged and skipped. Games are returned in display order.
func (l *Loader) LoadDir(root string) ([]*GameConfig, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read game data dir: %w", err)
	}

	var games []*GameConfig
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		path, ok := findDataFile(dir)
		if !ok {
			l.logger.WithField("dir", dir).Warn("no data file in game folder, skipping")
			continue
		}
		g, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[g.ID]; dup {
			return nil, fmt.Errorf("%w: game %q defined in %s and %s", ErrInvalidConfig, g.ID, prev, path)
		}
		seen[g.ID] = path
		games = append(games, g)
	}

	SortGames(games)
	l.logger.WithField("games", len(games)).Info("loaded game data")
	return games, nil
}

func findDataFile(dir string) (string, bool) {
	for _, name := range DataFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// describeValidation turns validator errors into "Field: tag" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		parts = append(parts, ve.Namespace()+": "+ve.Tag())
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
