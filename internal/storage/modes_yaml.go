package storage

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"duet/internal/core/model"
)

const modesFileName = "modes.yaml"

var (
	ErrModeNotFound = errors.New("mode not found")
	ErrModeLocked   = errors.New("mode is locked")
	ErrInvalidMode  = errors.New("invalid mode")
)

//go:embed modes/builtin.yaml
var builtinModes []byte

//go:embed schema.cue
var modeSchema []byte

type yamlModes struct {
	Modes []model.PhaseSequence `yaml:"modes"`
}

// ModeStore serves the built-in modes together with the user's own, which
// are kept in a YAML file in the data directory.
type ModeStore struct {
	mu      sync.Mutex
	path    string
	schema  cue.Value
	builtin []model.PhaseSequence
}

// OpenModes loads the built-in modes and prepares the custom mode file under
// dataDir. The file itself is created on the first Save.
func OpenModes(dataDir string) (*ModeStore, error) {
	schema := cuecontext.New().CompileBytes(modeSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile mode schema: %w", err)
	}

	store := &ModeStore{
		path:   filepath.Join(dataDir, modesFileName),
		schema: schema.LookupPath(cue.ParsePath("#Document")),
	}

	builtin, err := store.decode("builtin.yaml", builtinModes)
	if err != nil {
		return nil, fmt.Errorf("load builtin modes: %w", err)
	}
	for index := range builtin {
		builtin[index].Locked = true
	}
	store.builtin = builtin
	return store, nil
}

// Path returns the location of the custom mode file.
func (store *ModeStore) Path() string {
	return store.path
}

// List returns the built-in modes followed by custom modes ordered by ID.
func (store *ModeStore) List() ([]model.PhaseSequence, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	custom, err := store.loadCustomLocked()
	if err != nil {
		return nil, err
	}

	modes := make([]model.PhaseSequence, 0, len(store.builtin)+len(custom))
	for _, mode := range store.builtin {
		modes = append(modes, mode.Clone())
	}
	return append(modes, custom...), nil
}

// Get returns the mode with the given ID.
func (store *ModeStore) Get(id string) (model.PhaseSequence, error) {
	modes, err := store.List()
	if err != nil {
		return model.PhaseSequence{}, err
	}
	for _, mode := range modes {
		if mode.ID == id {
			return mode, nil
		}
	}
	return model.PhaseSequence{}, fmt.Errorf("%w: %s", ErrModeNotFound, id)
}

// Save adds or replaces a custom mode.
func (store *ModeStore) Save(mode model.PhaseSequence) error {
	if store.isBuiltin(mode.ID) {
		return fmt.Errorf("save mode %s: %w", mode.ID, ErrModeLocked)
	}
	mode = mode.Clone()
	mode.Locked = false

	serialized, err := yaml.Marshal(yamlModes{Modes: []model.PhaseSequence{mode}})
	if err != nil {
		return fmt.Errorf("marshal mode yaml: %w", err)
	}
	if _, err := store.decode(mode.ID, serialized); err != nil {
		return fmt.Errorf("save mode %s: %w", mode.ID, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	custom, err := store.loadCustomLocked()
	if err != nil {
		return err
	}
	index := slices.IndexFunc(custom, func(existing model.PhaseSequence) bool { return existing.ID == mode.ID })
	if index >= 0 {
		custom[index] = mode
	} else {
		custom = append(custom, mode)
	}
	return store.writeCustomLocked(custom)
}

// Delete removes a custom mode.
func (store *ModeStore) Delete(id string) error {
	if store.isBuiltin(id) {
		return fmt.Errorf("delete mode %s: %w", id, ErrModeLocked)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	custom, err := store.loadCustomLocked()
	if err != nil {
		return err
	}
	index := slices.IndexFunc(custom, func(existing model.PhaseSequence) bool { return existing.ID == id })
	if index < 0 {
		return fmt.Errorf("delete mode: %w: %s", ErrModeNotFound, id)
	}
	return store.writeCustomLocked(slices.Delete(custom, index, index+1))
}

// Decode parses and validates a mode document without storing it.
func (store *ModeStore) Decode(name string, data []byte) ([]model.PhaseSequence, error) {
	return store.decode(name, data)
}

func (store *ModeStore) isBuiltin(id string) bool {
	return slices.ContainsFunc(store.builtin, func(mode model.PhaseSequence) bool { return mode.ID == id })
}

// decode checks the document against the schema, then parses it and runs
// model validation on every mode.
func (store *ModeStore) decode(name string, data []byte) ([]model.PhaseSequence, error) {
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidMode, name, err)
	}
	value := store.schema.Context().BuildFile(file)
	if err := store.schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMode, name, err)
	}

	var fileData yamlModes
	if err := yaml.Unmarshal(data, &fileData); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidMode, name, err)
	}

	seen := make(map[string]bool, len(fileData.Modes))
	for _, mode := range fileData.Modes {
		if seen[mode.ID] {
			return nil, fmt.Errorf("%w: duplicate mode id %s", ErrInvalidMode, mode.ID)
		}
		seen[mode.ID] = true
		if err := mode.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMode, mode.ID, err)
		}
	}
	return fileData.Modes, nil
}

func (store *ModeStore) loadCustomLocked() ([]model.PhaseSequence, error) {
	rawData, err := os.ReadFile(store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read modes file: %w", err)
	}

	custom, err := store.decode(store.path, rawData)
	if err != nil {
		return nil, fmt.Errorf("load modes file: %w", err)
	}
	custom = slices.DeleteFunc(custom, func(mode model.PhaseSequence) bool { return store.isBuiltin(mode.ID) })
	slices.SortFunc(custom, func(left, right model.PhaseSequence) int { return strings.Compare(left.ID, right.ID) })
	return custom, nil
}

func (store *ModeStore) writeCustomLocked(custom []model.PhaseSequence) error {
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	serialized, err := yaml.Marshal(yamlModes{Modes: custom})
	if err != nil {
		return fmt.Errorf("marshal modes yaml: %w", err)
	}
	if err := os.WriteFile(store.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write modes file: %w", err)
	}
	return nil
}
