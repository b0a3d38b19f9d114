package pregen

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dm-vev/pregen/pregen/level"
	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConf builds a Config rooted in a fresh temporary directory with the
// server and world directories already created.
func testConf(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	conf := Config{
		Log:       discard(),
		CacheDir:  filepath.Join(root, "cache"),
		ServerDir: filepath.Join(root, "server"),
	}.withDefaults()
	for _, dir := range []string{conf.CacheDir, conf.VersionsDir, conf.ServerDir, conf.WorldDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return conf
}

// writeLevelDat writes a minimal legacy-format level.dat, the way a server
// run would leave one behind.
func writeLevelDat(t *testing.T, path string, seed int64, x, z int32) {
	t.Helper()
	writeLevelRoot(t, path, map[string]any{"Data": map[string]any{
		"RandomSeed": seed,
		"SpawnX":     x,
		"SpawnZ":     z,
	}})
}

// writeModernLevelDat writes a level.dat in the newer save format, where the
// seed lives inside WorldGenSettings and no RandomSeed field exists.
func writeModernLevelDat(t *testing.T, path string, seed int64, x, z int32) {
	t.Helper()
	writeLevelRoot(t, path, map[string]any{"Data": map[string]any{
		"WorldGenSettings": map[string]any{"seed": seed},
		"SpawnX":           x,
		"SpawnZ":           z,
	}})
}

func writeLevelRoot(t *testing.T, path string, root map[string]any) {
	t.Helper()
	raw, err := nbt.MarshalEncoding(root, nbt.BigEndian)
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fakeRunner stands in for the process supervisor. Each call may mutate the
// world directory the way a real server run would.
type fakeRunner struct {
	attempts []int // maxAttempts passed per call
	onRun    func(call int) error
}

func (f *fakeRunner) Run(jar string, printOutput bool, maxAttempts int) error {
	f.attempts = append(f.attempts, maxAttempts)
	if f.onRun != nil {
		return f.onRun(len(f.attempts))
	}
	return nil
}

func TestPregenerateSingleWindowFreshWorld(t *testing.T) {
	conf := testConf(t)
	run := &fakeRunner{}
	// The first run simulates a server honouring level-seed in
	// server.properties and spawning at (24, -40).
	run.onRun = func(call int) error {
		if call == 1 {
			writeLevelDat(t, conf.LevelDatPath(), 42, 24, -40)
		}
		return nil
	}
	d := NewDriver(conf, run)

	seed := int64(42)
	if err := d.Pregenerate("server.jar", &seed, 0, 0, 0); err != nil {
		t.Fatalf("Pregenerate: %v", err)
	}

	// One reconciliation run without retries, one window run with the
	// pre-generation retry bound.
	if want := []int{1, 10}; len(run.attempts) != 2 || run.attempts[0] != want[0] || run.attempts[1] != want[1] {
		t.Fatalf("run attempts = %v, want %v", run.attempts, want)
	}
	// The spawn produced by the seed run is the one restored at the end.
	x, z, err := level.Spawn(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}
	if x != 24 || z != -40 {
		t.Fatalf("final spawn = (%d, %d), want (24, -40)", x, z)
	}
	if s, _ := level.Seed(conf.LevelDatPath()); s != 42 {
		t.Fatalf("seed = %d, want 42", s)
	}
}

func TestPregenerateIgnoredSeedProperty(t *testing.T) {
	conf := testConf(t)
	run := &fakeRunner{}
	run.onRun = func(call int) error {
		if call == 1 {
			// A legacy server ignores level-seed and generates with a random
			// one, leaving some world data next to level.dat.
			writeLevelDat(t, conf.LevelDatPath(), 1337, 24, 24)
			if err := os.MkdirAll(filepath.Join(conf.WorldDir, "region"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		return nil
	}
	d := NewDriver(conf, run)

	seed := int64(42)
	if err := d.Pregenerate("server.jar", &seed, 0, 0, 0); err != nil {
		t.Fatalf("Pregenerate: %v", err)
	}

	// The seed must have been patched in directly and the stale world data
	// discarded, keeping only level.dat.
	if s, _ := level.Seed(conf.LevelDatPath()); s != 42 {
		t.Fatalf("seed = %d, want patched 42", s)
	}
	if _, err := os.Stat(filepath.Join(conf.WorldDir, "region")); !os.IsNotExist(err) {
		t.Fatalf("world data generated under the wrong seed was kept")
	}
	// No pre-existing spawn was recorded, so (0, 0) is restored.
	x, z, err := level.Spawn(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}
	if x != 0 || z != 0 {
		t.Fatalf("final spawn = (%d, %d), want (0, 0)", x, z)
	}
}

func TestPregenerateModernFormatSeedNotSettable(t *testing.T) {
	conf := testConf(t)
	logged := &bytes.Buffer{}
	conf.Log = slog.New(slog.NewTextHandler(logged, nil))
	run := &fakeRunner{}
	run.onRun = func(call int) error {
		if call == 1 {
			// A modern server ignores level-seed here and generates under its
			// own seed; the format offers no RandomSeed field to patch.
			writeModernLevelDat(t, conf.LevelDatPath(), 1337, 24, 24)
			if err := os.MkdirAll(filepath.Join(conf.WorldDir, "region"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		return nil
	}
	d := NewDriver(conf, run)

	seed := int64(42)
	if err := d.Pregenerate("server.jar", &seed, 0, 0, 0); err != nil {
		t.Fatalf("Pregenerate: %v", err)
	}

	// The unpatchable seed is a logged limitation, not an error, and the
	// generated seed stays in place.
	if !strings.Contains(logged.String(), "no directly settable seed") {
		t.Fatalf("expected a warning about the unpatchable seed, logs:\n%s", logged.String())
	}
	if s, _ := level.Seed(conf.LevelDatPath()); s != 1337 {
		t.Fatalf("seed = %d, want the generated 1337", s)
	}
	// World data generated under the wrong seed is still discarded.
	if _, err := os.Stat(filepath.Join(conf.WorldDir, "region")); !os.IsNotExist(err) {
		t.Fatalf("world data generated under the wrong seed was kept")
	}
	if _, err := os.Stat(conf.LevelDatPath()); err != nil {
		t.Fatalf("level.dat did not survive the discard: %v", err)
	}
	// No pre-existing spawn was recorded, so (0, 0) is restored.
	x, z, err := level.Spawn(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}
	if x != 0 || z != 0 {
		t.Fatalf("final spawn = (%d, %d), want (0, 0)", x, z)
	}
}

func TestPregenerateKeepsMatchingWorld(t *testing.T) {
	conf := testConf(t)
	writeLevelDat(t, conf.LevelDatPath(), 42, 100, -200)
	run := &fakeRunner{}
	d := NewDriver(conf, run)
	seed := int64(42)

	for range 2 {
		if err := d.Pregenerate("server.jar", &seed, 0, 0, 0); err != nil {
			t.Fatalf("Pregenerate: %v", err)
		}
		if s, _ := level.Seed(conf.LevelDatPath()); s != 42 {
			t.Fatalf("seed = %d, want 42", s)
		}
		x, z, err := level.Spawn(conf.LevelDatPath())
		if err != nil {
			t.Fatal(err)
		}
		if x != 100 || z != -200 {
			t.Fatalf("final spawn = (%d, %d), want (100, -200)", x, z)
		}
	}
	// No reconciliation runs: only the window run of each invocation.
	if want := []int{10, 10}; len(run.attempts) != 2 || run.attempts[0] != 10 || run.attempts[1] != 10 {
		t.Fatalf("run attempts = %v, want %v", run.attempts, want)
	}
}

func TestPregenerateSeedConflict(t *testing.T) {
	conf := testConf(t)
	writeLevelDat(t, conf.LevelDatPath(), 1, 100, -200)
	before, err := os.ReadFile(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}

	run := &fakeRunner{}
	d := NewDriver(conf, run)
	seed := int64(2)
	if err := d.Pregenerate("server.jar", &seed, 0, 0, 0); !errors.Is(err, ErrSeedConflict) {
		t.Fatalf("Pregenerate = %v, want ErrSeedConflict", err)
	}
	if len(run.attempts) != 0 {
		t.Fatalf("server was run %d times despite the seed conflict", len(run.attempts))
	}
	after, err := os.ReadFile(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("level.dat was modified despite the seed conflict")
	}
}

func TestPregenerateWithoutSeedRestoresOrigin(t *testing.T) {
	conf := testConf(t)
	writeLevelDat(t, conf.LevelDatPath(), 7, 500, 500)
	run := &fakeRunner{}
	d := NewDriver(conf, run)

	if err := d.Pregenerate("server.jar", nil, 0, 0, 10); err != nil {
		t.Fatalf("Pregenerate: %v", err)
	}
	// radius 10 -> 2x2 grid.
	if len(run.attempts) != 4 {
		t.Fatalf("expected 4 window runs, got %d", len(run.attempts))
	}
	x, z, err := level.Spawn(conf.LevelDatPath())
	if err != nil {
		t.Fatal(err)
	}
	if x != 0 || z != 0 {
		t.Fatalf("final spawn = (%d, %d), want (0, 0)", x, z)
	}
}

func TestPregenerateRunFailureLeavesSpawnUnrestored(t *testing.T) {
	conf := testConf(t)
	writeLevelDat(t, conf.LevelDatPath(), 7, 500, 500)
	failure := errors.New("the server didn't run successfully")
	run := &fakeRunner{onRun: func(call int) error {
		if call == 2 {
			return failure
		}
		return nil
	}}
	d := NewDriver(conf, run)

	err := d.Pregenerate("server.jar", nil, 0, 0, 10)
	if !errors.Is(err, failure) {
		t.Fatalf("Pregenerate = %v, want run failure", err)
	}

	// Documented gap: on a mid-loop failure the spawn point stays at the
	// failed window's anchor instead of being restored.
	plan := PlanWindows(0, 0, 10, spawnChunkDiameter)
	wantX, wantZ := plan.Anchor(0, 1)
	x, z, readErr := level.Spawn(conf.LevelDatPath())
	if readErr != nil {
		t.Fatal(readErr)
	}
	if x != wantX || z != wantZ {
		t.Fatalf("spawn after failure = (%d, %d), want the failed window's anchor (%d, %d)", x, z, wantX, wantZ)
	}
}

func TestCleanKeepsEULAAndWorldDirectory(t *testing.T) {
	conf := testConf(t)
	mustWrite(t, filepath.Join(conf.ServerDir, "eula.txt"), "eula=true")
	mustWrite(t, filepath.Join(conf.ServerDir, "server.properties"), "level-seed=1")
	mustWrite(t, filepath.Join(conf.WorldDir, "level.dat"), "stale")

	d := NewDriver(conf, &fakeRunner{})
	if err := d.Clean(); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(conf.ServerDir, "eula.txt")); err != nil {
		t.Fatalf("eula.txt was deleted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(conf.ServerDir, "server.properties")); !os.IsNotExist(err) {
		t.Fatalf("server.properties survived Clean")
	}
	if _, err := os.Stat(conf.WorldDir); err != nil {
		t.Fatalf("world directory was deleted: %v", err)
	}
	if _, err := os.Stat(conf.LevelDatPath()); !os.IsNotExist(err) {
		t.Fatalf("world contents survived Clean")
	}
}

func TestSeedPropertyOverwritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.properties")
	mustWrite(t, path, "motd=hello\nlevel-seed=1\n")
	if err := writeSeedProperty(path, -42); err != nil {
		t.Fatalf("writeSeedProperty: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "level-seed=-42\n" {
		t.Fatalf("server.properties = %q, want a full overwrite", b)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}
