// Package pregen drives terrain pre-generation for an external Minecraft
// server: it tiles the requested chunk radius into generation windows,
// relocates the world spawn point to each window in turn and lets the server
// generate its spawn region there through repeated supervised runs.
package pregen

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dm-vev/pregen/pregen/internal/fsutil"
	"github.com/dm-vev/pregen/pregen/level"
)

// ErrSeedConflict is returned when the existing world was generated with a
// different seed than the one requested. The world is never deleted
// automatically in that case.
var ErrSeedConflict = errors.New("existing world uses a different seed")

// ServerRunner is the part of the process supervisor the driver depends on.
type ServerRunner interface {
	// Run launches the server jar and blocks until the run is classified,
	// retrying transient failures up to maxAttempts runs.
	Run(jar string, printOutput bool, maxAttempts int) error
}

// Driver performs pre-generation against a single server directory.
type Driver struct {
	conf Config
	log  *slog.Logger
	run  ServerRunner
}

// NewDriver creates a Driver using the fields of conf, running the server
// through run.
func NewDriver(conf Config, run ServerRunner) *Driver {
	conf = conf.withDefaults()
	return &Driver{conf: conf, log: conf.Log, run: run}
}

// Clean deletes the contents of the server directory, keeping only the EULA
// acceptance marker and the world directory, and then deletes the contents of
// the world directory.
func (d *Driver) Clean() error {
	d.log.Info("deleting server directory contents", "dir", d.conf.ServerDir)
	if err := fsutil.ClearDir(d.log, d.conf.ServerDir, "eula.txt", "world"); err != nil {
		return fmt.Errorf("clean server directory: %w", err)
	}
	if err := fsutil.ClearDir(d.log, d.conf.WorldDir); err != nil {
		return fmt.Errorf("clean world directory: %w", err)
	}
	return nil
}

// Pregenerate covers chunkRadius chunks in every direction around the block
// coordinate (centerX, centerZ) by running the server jar once per generation
// window, relocating the spawn point before each run. When seed is non-nil,
// the world seed is reconciled first; the pre-generation aborts with
// ErrSeedConflict if an existing world uses a different seed. After the last
// window the spawn point is restored: to the spawn of the pre-existing world
// if one was kept, to (0, 0) otherwise.
//
// A run failure aborts the whole operation immediately. The spawn point is
// then left at the last window's anchor, not restored; recovery is manual.
func (d *Driver) Pregenerate(jar string, seed *int64, centerX, centerZ, chunkRadius int32) error {
	d.log.Info("pre-generating", "jar", jar, "centerX", centerX, "centerZ", centerZ, "chunkRadius", chunkRadius)
	start := time.Now()

	var finalX, finalZ int32
	if seed != nil {
		x, z, err := d.reconcileSeed(jar, *seed)
		if err != nil {
			return err
		}
		finalX, finalZ = x, z
	}

	plan := PlanWindows(centerX, centerZ, chunkRadius, d.conf.WindowDiameter)
	total := plan.Total()
	done := 0
	for dx := int32(0); dx < plan.StepDiameter; dx++ {
		for dz := int32(0); dz < plan.StepDiameter; dz++ {
			x, z := plan.Anchor(dx, dz)
			d.log.Info("setting spawn point", "x", x, "z", z)
			if err := level.SetSpawn(d.conf.LevelDatPath(), x, z); err != nil {
				return fmt.Errorf("relocate spawn: %w", err)
			}
			if err := d.run.Run(jar, false, pregenAttempts); err != nil {
				return err
			}
			done++
			d.log.Info("window done", "done", done, "total", total,
				"progress", fmt.Sprintf("%.1f%%", 100*float64(done)/float64(total)))
		}
	}

	if err := level.SetSpawn(d.conf.LevelDatPath(), finalX, finalZ); err != nil {
		return fmt.Errorf("restore spawn: %w", err)
	}
	d.log.Info("pre-generation finished", "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// reconcileSeed makes sure the world at the server directory uses the seed
// requested and returns the spawn point to restore once pre-generation is
// done.
//
// An existing world with a matching seed is kept as is. A fresh world is
// generated once with the seed set through server.properties; if the server
// ignored that (legacy versions), the seed is patched into level.dat directly
// and the generated world data is discarded so the following runs regenerate
// it under the intended seed. Save formats that expose no patchable seed
// field are a known limitation: the failure is logged, not surfaced.
func (d *Driver) reconcileSeed(jar string, seed int64) (finalX, finalZ int32, err error) {
	path := d.conf.LevelDatPath()
	if _, statErr := os.Stat(path); statErr == nil {
		current, err := level.Seed(path)
		if err != nil {
			return 0, 0, err
		}
		if current != seed {
			return 0, 0, fmt.Errorf("%w (%d != %d), delete it first", ErrSeedConflict, current, seed)
		}
		d.log.Info("existing world uses the same seed, keeping it")
		x, z, err := level.Spawn(path)
		if err != nil {
			return 0, 0, err
		}
		return x, z, nil
	}

	d.log.Info("no existing level.dat found")
	if err := d.Clean(); err != nil {
		return 0, 0, err
	}
	d.log.Info("trying to set the seed through server.properties")
	if err := writeSeedProperty(d.conf.ServerPropertiesPath(), seed); err != nil {
		return 0, 0, err
	}
	if err := d.run.Run(jar, false, 1); err != nil {
		return 0, 0, err
	}

	got, err := level.Seed(path)
	if err != nil {
		return 0, 0, err
	}
	if got == seed {
		d.log.Info("successfully set the seed through server.properties")
		x, z, err := level.Spawn(path)
		if err != nil {
			return 0, 0, err
		}
		return x, z, nil
	}

	d.log.Info("could not set the seed through server.properties, modifying level.dat")
	if err := level.SetSeed(path, seed); err != nil {
		if !errors.Is(err, level.ErrSeedNotSettable) {
			return 0, 0, err
		}
		d.log.Warn("this save format has no directly settable seed, the requested seed cannot be forced", "seed", seed)
	}
	d.log.Info("deleting world data generated with the random seed")
	if err := fsutil.ClearDir(d.log, d.conf.WorldDir, "level.dat"); err != nil {
		return 0, 0, err
	}
	return 0, 0, nil
}
