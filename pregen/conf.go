package pregen

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// spawnChunkDiameter is the side of a generation window, in chunks. It is a
// safe upper bound on the square of chunks a single server run fully
// processes around the spawn point, observed per era with the spawn at 8, 8:
//
//	a0.1.0  -10..=10 generated, -10..=9 populated
//	a0.2.0  -10..=10 generated, -10..=9 populated
//	b1.8.1  -12..=12 generated, -12..=11 populated
//	1.0.0   -12..=12 generated, -12..=11 populated
//	1.12.2  -12..=12 generated, -12..=11 populated
//	1.13.2  -13..=13 decorated, -12..=12 fullchunk
//	1.14.4  -11..=11 full
//	1.16.5  -11..=11 full
//	1.19.3  -12..=12 features, -11..=11 full
//
// 19 is covered by every supported version.
const spawnChunkDiameter = 19

// pregenAttempts is the retry bound for runs inside the window loop.
// Pre-generation runs are long and more failure-prone than a one-off
// diagnostic run, so they get a higher bound than other call sites.
const pregenAttempts = 10

// Config contains the resolved settings of the pre-generation driver. It is
// constructed once at startup, usually from a UserConfig, and passed to every
// component explicitly.
type Config struct {
	// Log is the Logger used for progress reporting. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// CacheDir is the directory holding the persisted manifest and archive
	// index caches.
	CacheDir string
	// VersionsDir is the directory downloaded server jars are stored in.
	VersionsDir string
	// ServerDir is the server root the child process runs in. It holds
	// eula.txt, server.properties and the world directory.
	ServerDir string
	// WorldDir is the world directory inside ServerDir.
	WorldDir string
	// Java is the name or path of the java executable.
	Java string
	// ManifestURL is the official version manifest endpoint.
	ManifestURL string
	// ArchiveURL is the base URL of the archived-server directory listing.
	ArchiveURL string
	// WindowDiameter is the side of a generation window in chunks. Defaults
	// to spawnChunkDiameter.
	WindowDiameter int32
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.CacheDir == "" {
		c.CacheDir = "cache"
	}
	if c.VersionsDir == "" {
		c.VersionsDir = filepath.Join(c.CacheDir, "versions")
	}
	if c.ServerDir == "" {
		c.ServerDir = "server"
	}
	if c.WorldDir == "" {
		c.WorldDir = filepath.Join(c.ServerDir, "world")
	}
	if c.Java == "" {
		c.Java = "java"
	}
	if c.ManifestURL == "" {
		c.ManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	}
	if c.ArchiveURL == "" {
		c.ArchiveURL = "https://files.betacraft.uk/server-archive/"
	}
	if c.WindowDiameter <= 0 {
		c.WindowDiameter = spawnChunkDiameter
	}
	return c
}

// LevelDatPath returns the path of the world-state file inside the world
// directory.
func (c Config) LevelDatPath() string {
	return filepath.Join(c.WorldDir, "level.dat")
}

// ServerPropertiesPath returns the path of the server configuration file
// inside the server directory.
func (c Config) ServerPropertiesPath() string {
	return filepath.Join(c.ServerDir, "server.properties")
}

// UserConfig is the user configuration of the pre-generation tool. It may be
// serialised (TOML) and converted to a Config by calling UserConfig.Config().
type UserConfig struct {
	Paths struct {
		// Cache is the directory downloaded manifests and server jars are
		// cached in.
		Cache string
		// Server is the directory the server runs in.
		Server string
	}
	Java struct {
		// Executable is the name or path of the java executable used to
		// launch server jars.
		Executable string
	}
	Sources struct {
		// Manifest is the URL of the official version manifest.
		Manifest string
		// Archive is the base URL of the archived-server directory listing.
		Archive string
	}
}

// Config converts a UserConfig to a Config for creating a Driver.
func (uc UserConfig) Config(log *slog.Logger) Config {
	return Config{
		Log:         log,
		CacheDir:    strings.TrimSpace(uc.Paths.Cache),
		ServerDir:   strings.TrimSpace(uc.Paths.Server),
		Java:        strings.TrimSpace(uc.Java.Executable),
		ManifestURL: strings.TrimSpace(uc.Sources.Manifest),
		ArchiveURL:  strings.TrimSpace(uc.Sources.Archive),
	}.withDefaults()
}

// DefaultConfig returns a user configuration with the default values filled
// out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Paths.Cache = "cache"
	c.Paths.Server = "server"
	c.Java.Executable = "java"
	c.Sources.Manifest = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	c.Sources.Archive = "https://files.betacraft.uk/server-archive/"
	return c
}
