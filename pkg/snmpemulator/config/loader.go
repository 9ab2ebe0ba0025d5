// Package config provides YAML configuration loading for the SNMP emulator.
//
// It reads three directory trees (driven by environment variables) and
// produces a LoadedConfig value that the application turns into schema
// models and behaviour stores.
//
//	SNMPEMU_TYPE_DEFINITIONS_DIRECTORY_PATH      → Types
//	SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH       → MIBs
//	SNMPEMU_BEHAVIOUR_DEFINITIONS_DIRECTORY_PATH → Behaviours
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Paths holds the directory locations for every configuration tree.
type Paths struct {
	Types      string // SNMPEMU_TYPE_DEFINITIONS_DIRECTORY_PATH
	MIBs       string // SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH
	Behaviours string // SNMPEMU_BEHAVIOUR_DEFINITIONS_DIRECTORY_PATH
}

// PathsFromEnv reads each path from its environment variable, falling back to
// the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Types:      envOr("SNMPEMU_TYPE_DEFINITIONS_DIRECTORY_PATH", "/etc/snmp_emulator/types"),
		MIBs:       envOr("SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH", "/etc/snmp_emulator/mibs"),
		Behaviours: envOr("SNMPEMU_BEHAVIOUR_DEFINITIONS_DIRECTORY_PATH", "/etc/snmp_emulator/behaviours"),
	}
}

// Dirs lists the non-empty directories, for watching.
func (p Paths) Dirs() []string {
	var out []string
	for _, d := range []string{p.Types, p.MIBs, p.Behaviours} {
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// LoadedConfig
// ─────────────────────────────────────────────────────────────────────────────

// LoadedConfig is the fully parsed representation of all configuration trees.
type LoadedConfig struct {
	// Types are the declared types, converted for the registry. Builtins are
	// not included.
	Types []mibtypes.TypeDescriptor

	// MIBs holds one merged definition per MIB, sorted by name.
	MIBs []models.MIBDefinition

	// Behaviours maps MIB name → merged behaviour.
	Behaviours map[string]models.BehaviourDefinition
}

// Registry returns a type registry holding the builtins and every declared
// type.
func (c *LoadedConfig) Registry() (*mibtypes.Registry, error) {
	reg := mibtypes.NewRegistry()
	if err := reg.Register(c.Types...); err != nil {
		return nil, fmt.Errorf("config: types: %w", err)
	}
	return reg, nil
}

// MIB returns the definition called name.
func (c *LoadedConfig) MIB(name string) (models.MIBDefinition, bool) {
	for _, m := range c.MIBs {
		if m.Name == name {
			return m, true
		}
	}
	return models.MIBDefinition{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads all configuration directories specified by paths and returns a
// fully resolved LoadedConfig. Malformed files are logged and skipped;
// semantic errors from individual files are accumulated and returned together
// so that operators see all problems at once.
//
// If a directory does not exist, that section is skipped silently. This
// allows partial deployments.
func Load(paths Paths, logger *slog.Logger) (*LoadedConfig, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var errs []string

	// 1. Types ————————————————————————————————————————————————————————————————
	types, err := loadTypes(paths.Types, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// 2. MIBs —————————————————————————————————————————————————————————————————
	mibs, err := loadMIBs(paths.MIBs, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// 3. Behaviours ———————————————————————————————————————————————————————————
	behaviours, err := loadBehaviours(paths.Behaviours, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	logger.Info("config: loaded",
		"types", len(types),
		"mibs", len(mibs),
		"behaviours", len(behaviours),
	)
	return &LoadedConfig{Types: types, MIBs: mibs, Behaviours: behaviours}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

type rawTypeFile struct {
	Types []models.TypeDefinition `yaml:"types"`
}

func loadTypes(dir string, logger *slog.Logger) ([]mibtypes.TypeDescriptor, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list types dir %q: %w", dir, err)
	}

	var (
		out  []mibtypes.TypeDescriptor
		errs []error
	)
	for _, path := range files {
		var raw rawTypeFile
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed types file", "file", path, "error", err.Error())
			continue
		}
		for _, td := range raw.Types {
			d, err := ConvertType(td)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			out = append(out, d)
		}
		logger.Debug("config: loaded types file", "file", path, "count", len(raw.Types))
	}

	// A type chain may span files, so the set is resolved as a whole.
	if err := mibtypes.NewRegistry().Register(out...); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// ConvertType turns a YAML type declaration into a registry descriptor.
func ConvertType(td models.TypeDefinition) (mibtypes.TypeDescriptor, error) {
	if td.Name == "" {
		return mibtypes.TypeDescriptor{}, fmt.Errorf("type without a name")
	}
	if td.Base == "" && td.Parent == "" {
		return mibtypes.TypeDescriptor{}, fmt.Errorf("type %s: neither base nor parent is set", td.Name)
	}
	d := mibtypes.TypeDescriptor{
		Name:        td.Name,
		Parent:      td.Parent,
		Syntax:      td.Syntax,
		DisplayHint: td.Hint,
	}
	if td.Base != "" {
		b, err := mibtypes.ParseBase(td.Base)
		if err != nil {
			return mibtypes.TypeDescriptor{}, fmt.Errorf("type %s: %w", td.Name, err)
		}
		d.Base = b
	}
	for _, r := range td.Ranges {
		if r.Min > r.Max {
			return mibtypes.TypeDescriptor{}, fmt.Errorf("type %s: range %d..%d is empty", td.Name, r.Min, r.Max)
		}
		d.Constraints = append(d.Constraints, mibtypes.Constraint{Kind: mibtypes.KindRange, Min: r.Min, Max: r.Max})
	}
	for _, s := range td.Sizes {
		if s.Min > s.Max || s.Min < 0 {
			return mibtypes.TypeDescriptor{}, fmt.Errorf("type %s: size %d..%d is invalid", td.Name, s.Min, s.Max)
		}
		d.Constraints = append(d.Constraints, mibtypes.Constraint{Kind: mibtypes.KindSize, Min: s.Min, Max: s.Max})
	}
	for _, e := range td.Enums {
		d.Enums = append(d.Enums, mibtypes.EnumValue{Value: e.Value, Label: e.Label})
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MIBs
// ─────────────────────────────────────────────────────────────────────────────

func loadMIBs(dir string, logger *slog.Logger) ([]models.MIBDefinition, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list mibs dir %q: %w", dir, err)
	}

	merged := make(map[string]*models.MIBDefinition)
	var errs []error
	for _, path := range files {
		var docs []models.MIBDefinition
		if err := decodeAll(path, &docs); err != nil {
			logger.Warn("config: skip malformed mib file", "file", path, "error", err.Error())
			continue
		}
		for _, def := range docs {
			if err := checkMIB(def); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			m, ok := merged[def.Name]
			if !ok {
				m = &models.MIBDefinition{Name: def.Name}
				merged[def.Name] = m
			}
			m.Symbols = append(m.Symbols, def.Symbols...)
			m.Rows = append(m.Rows, def.Rows...)
		}
		logger.Debug("config: loaded mib file", "file", path, "documents", len(docs))
	}

	out := make([]models.MIBDefinition, 0, len(merged))
	for _, m := range merged {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, errors.Join(errs...)
}

// checkMIB rejects definitions that can never build: no name, symbols
// without a name or with an unparseable OID.
func checkMIB(def models.MIBDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("mib definition without a name")
	}
	for i, sym := range def.Symbols {
		if sym.Name == "" {
			return fmt.Errorf("mib %s: symbol %d has no name", def.Name, i)
		}
		o, err := oid.Parse(sym.OID)
		if err != nil {
			return fmt.Errorf("mib %s: symbol %s: %w", def.Name, sym.Name, err)
		}
		if len(o) == 0 {
			return fmt.Errorf("mib %s: symbol %s has no oid", def.Name, sym.Name)
		}
	}
	for _, r := range def.Rows {
		if r.Table == "" {
			return fmt.Errorf("mib %s: seed row without a table", def.Name)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Behaviours
// ─────────────────────────────────────────────────────────────────────────────

func loadBehaviours(dir string, logger *slog.Logger) (map[string]models.BehaviourDefinition, error) {
	result := make(map[string]models.BehaviourDefinition)
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("list behaviours dir %q: %w", dir, err)
	}

	var errs []error
	for _, path := range files {
		var docs []models.BehaviourDefinition
		if err := decodeAll(path, &docs); err != nil {
			logger.Warn("config: skip malformed behaviour file", "file", path, "error", err.Error())
			continue
		}
		for _, def := range docs {
			if def.MIB == "" {
				errs = append(errs, fmt.Errorf("%s: behaviour without a mib", path))
				continue
			}
			if err := checkBehaviour(def); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			cur := result[def.MIB]
			cur.MIB = def.MIB
			cur.Bindings = append(cur.Bindings, def.Bindings...)
			cur.Links = append(cur.Links, def.Links...)
			cur.Values = append(cur.Values, def.Values...)
			result[def.MIB] = cur
		}
		logger.Debug("config: loaded behaviour file", "file", path, "documents", len(docs))
	}
	return result, errors.Join(errs...)
}

func checkBehaviour(def models.BehaviourDefinition) error {
	for i, b := range def.Bindings {
		if (b.Name == "") == (b.OID == "") {
			return fmt.Errorf("mib %s: binding %d: exactly one of name and oid must be set", def.MIB, i)
		}
		if b.Function == "" {
			return fmt.Errorf("mib %s: binding %d has no function", def.MIB, i)
		}
		if b.OID != "" {
			if _, err := oid.Parse(b.OID); err != nil {
				return fmt.Errorf("mib %s: binding %d: %w", def.MIB, i, err)
			}
		}
	}
	for i, l := range def.Links {
		if l.ID == "" {
			return fmt.Errorf("mib %s: link %d has no id", def.MIB, i)
		}
	}
	for i, v := range def.Values {
		if v.Name == "" {
			return fmt.Errorf("mib %s: value %d has no name", def.MIB, i)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient — extra keys are fine
	err = dec.Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// decodeAll unmarshals every document of a multi-document YAML file.
func decodeAll[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	for {
		var doc T
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		*out = append(*out, doc)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
