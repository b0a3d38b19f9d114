// Package level reads and writes the handful of level.dat fields that the
// pre-generation driver cares about: the world seed and the spawn point. It is
// deliberately not a general save-format codec; everything else in the file is
// carried through untouched.
package level

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

var (
	// ErrMissingField is returned when a level.dat file does not contain a
	// field that the accessor expected to find, including the Data record
	// itself.
	ErrMissingField = errors.New("level.dat field missing")
	// ErrSeedNotSettable is returned by SetSeed for save formats that no
	// longer store the seed as a directly editable scalar. Newer formats keep
	// it inside the WorldGenSettings record, which this package does not
	// rewrite.
	ErrSeedNotSettable = errors.New("seed is not settable through level.dat for this save format")
)

// rootShape describes where the Data record was found inside the root
// compound. Files written by different NBT library generations differ: most
// hold Data directly under the root, some wrap it in an additional anonymous
// compound.
type rootShape int

const (
	rootFlat rootShape = iota
	rootNested
	rootAbsent
)

// Seed returns the world seed stored in the level.dat file at path. Legacy
// formats store it as the RandomSeed scalar; newer formats move it into
// WorldGenSettings.seed. If neither is present, ErrMissingField is returned.
func Seed(path string) (int64, error) {
	_, data, _, err := load(path)
	if err != nil {
		return 0, err
	}
	if v, ok := data["RandomSeed"]; ok {
		return asInt64(v)
	}
	gen, ok := data["WorldGenSettings"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: RandomSeed and WorldGenSettings", ErrMissingField)
	}
	v, ok := gen["seed"]
	if !ok {
		return 0, fmt.Errorf("%w: WorldGenSettings.seed", ErrMissingField)
	}
	return asInt64(v)
}

// SetSeed overwrites the legacy RandomSeed field of the level.dat file at
// path. For save formats without a RandomSeed field it returns
// ErrSeedNotSettable and leaves the file unmodified.
func SetSeed(path string, seed int64) error {
	root, data, _, err := load(path)
	if err != nil {
		return err
	}
	if _, ok := data["RandomSeed"]; !ok {
		return ErrSeedNotSettable
	}
	data["RandomSeed"] = seed
	return save(path, root)
}

// Spawn returns the spawn point (SpawnX, SpawnZ) stored in the level.dat file
// at path.
func Spawn(path string) (x, z int32, err error) {
	_, data, _, err := load(path)
	if err != nil {
		return 0, 0, err
	}
	if x, err = asInt32(data, "SpawnX"); err != nil {
		return 0, 0, err
	}
	if z, err = asInt32(data, "SpawnZ"); err != nil {
		return 0, 0, err
	}
	return x, z, nil
}

// SetSpawn overwrites the spawn point stored in the level.dat file at path.
// The root nesting shape found while reading is preserved on write.
func SetSpawn(path string, x, z int32) error {
	root, data, _, err := load(path)
	if err != nil {
		return err
	}
	data["SpawnX"] = x
	data["SpawnZ"] = z
	return save(path, root)
}

// load reads the gzip-compressed big-endian NBT file at path and locates its
// Data record using the two-step flat/nested lookup.
func load(path string) (root, data map[string]any, shape rootShape, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, rootAbsent, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, nil, rootAbsent, fmt.Errorf("open level.dat: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, rootAbsent, fmt.Errorf("decompress level.dat: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, nil, rootAbsent, fmt.Errorf("decompress level.dat: %w", err)
	}
	root = make(map[string]any)
	if err := nbt.UnmarshalEncoding(raw, &root, nbt.BigEndian); err != nil {
		return nil, nil, rootAbsent, fmt.Errorf("decode level.dat: %w", err)
	}
	data, shape = dataRecord(root)
	if shape == rootAbsent {
		return nil, nil, rootAbsent, fmt.Errorf("%w: Data", ErrMissingField)
	}
	return root, data, shape, nil
}

// dataRecord tries the flat form first and falls back to the nested form. The
// returned map aliases the root compound, so mutations are visible when the
// root is re-encoded.
func dataRecord(root map[string]any) (map[string]any, rootShape) {
	if data, ok := root["Data"].(map[string]any); ok {
		return data, rootFlat
	}
	if wrapper, ok := root[""].(map[string]any); ok {
		if data, ok := wrapper["Data"].(map[string]any); ok {
			return data, rootNested
		}
	}
	return nil, rootAbsent
}

// save writes the root compound back to path atomically: the encoded file is
// staged next to the target and moved into place with a rename.
func save(path string, root map[string]any) error {
	raw, err := nbt.MarshalEncoding(root, nbt.BigEndian)
	if err != nil {
		return fmt.Errorf("encode level.dat: %w", err)
	}
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("compress level.dat: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress level.dat: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write level.dat: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace level.dat: %w", err)
	}
	return nil
}

// asInt32 reads a 32-bit field from the Data record, tolerating the narrower
// integer tags used by very old save formats. A wider tag holding a value
// outside the 32-bit range is reported as corrupt rather than truncated.
func asInt32(data map[string]any, name string) (int32, error) {
	v, ok := data[name]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrMissingField, name)
	}
	n, err := asInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", name, err)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%v: value %d does not fit in 32 bits", name, n)
	}
	return int32(n), nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case byte:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected tag type %T", v)
	}
}
