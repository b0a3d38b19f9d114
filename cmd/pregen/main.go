// Command pregen pre-generates terrain for an external Minecraft server by
// repeatedly running it with a relocated spawn point. It also manages a local
// cache of server jars, downloaded from the official version manifest or the
// Betacraft server archive.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dm-vev/pregen/pregen"
	"github.com/dm-vev/pregen/pregen/runner"
	"github.com/dm-vev/pregen/pregen/versions"
	"github.com/pelletier/go-toml"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	uc, err := readConfig()
	if err != nil {
		log.Error("read config: " + err.Error())
		os.Exit(1)
	}
	conf := uc.Config(log)
	if err := setupDirs(conf); err != nil {
		log.Error("create directories: " + err.Error())
		os.Exit(1)
	}

	args := &argReader{args: os.Args[1:]}
	if args.empty() {
		printUsage()
		return
	}

	source := &versions.Source{
		Log:         log,
		CacheDir:    conf.CacheDir,
		VersionsDir: conf.VersionsDir,
		ManifestURL: conf.ManifestURL,
		ArchiveURL:  conf.ArchiveURL,
	}
	run := &runner.Runner{Log: log, Java: conf.Java, Dir: conf.ServerDir}
	driver := pregen.NewDriver(conf, run)

	switch cmd := args.next("clean | run | pregen"); cmd {
	case "clean":
		args.end()
		if err := driver.Clean(); err != nil {
			log.Error("clean: " + err.Error())
			os.Exit(1)
		}
	case "run":
		version := args.next("<version>")
		args.end()
		jar := resolve(source, version)
		if err := run.RunOnce(jar); err != nil {
			log.Error("run server: " + err.Error())
			os.Exit(1)
		}
	case "pregen":
		version := args.next("<version>")
		var seed *int64
		if args.peek("--seed | <spawn_x>") == "--seed" {
			args.next("--seed")
			s := args.nextInt64("<seed>")
			seed = &s
		}
		spawnX := args.nextInt32("<spawn_x>")
		spawnZ := args.nextInt32("<spawn_z>")
		chunkRadius := args.nextInt32("<chunk_radius>")
		args.end()

		jar := resolve(source, version)
		if err := driver.Pregenerate(jar, seed, spawnX, spawnZ, chunkRadius); err != nil {
			log.Error("pregen: " + err.Error())
			os.Exit(1)
		}
	default:
		abort("unknown subcommand: " + cmd)
	}
}

// resolve looks up a locally cached server jar for the version passed,
// downloading it if needed, and aborts when the version cannot be found.
func resolve(source *versions.Source, version string) string {
	jar, err := source.Resolve(version)
	if err != nil {
		abort("could not find a server jar for version " + version + ": " + err.Error())
	}
	return jar
}

// readConfig reads the pregen.toml configuration, creating it with default
// values if it does not yet exist.
func readConfig() (pregen.UserConfig, error) {
	c := pregen.DefaultConfig()
	if _, err := os.Stat("pregen.toml"); os.IsNotExist(err) {
		data, err := toml.Marshal(c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.WriteFile("pregen.toml", data, 0o644); err != nil {
			return c, fmt.Errorf("create default config: %w", err)
		}
		return c, nil
	}
	data, err := os.ReadFile("pregen.toml")
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func setupDirs(conf pregen.Config) error {
	for _, dir := range []string{conf.CacheDir, conf.VersionsDir, conf.ServerDir, conf.WorldDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  pregen clean")
	fmt.Println("      Delete almost everything in the server directory")
	fmt.Println("  pregen run <version>")
	fmt.Println("      Run the specified version once, used to upgrade the world format")
	fmt.Println("  pregen pregen <version> [--seed <seed>] <spawn_x> <spawn_z> <chunk_radius>")
	fmt.Println("      Generate at least the specified area with the specified version and seed")
}

func abort(msg string) {
	fmt.Println(msg)
	os.Exit(1)
}

// argReader walks the command-line arguments, aborting with a message naming
// the expected token whenever one is missing or malformed.
type argReader struct {
	args []string
	i    int
}

func (r *argReader) empty() bool {
	return r.i >= len(r.args)
}

func (r *argReader) peek(expected string) string {
	if r.empty() {
		abort("not enough arguments, expected " + expected)
	}
	return r.args[r.i]
}

func (r *argReader) next(expected string) string {
	v := r.peek(expected)
	r.i++
	return v
}

func (r *argReader) nextInt64(expected string) int64 {
	v := r.next(expected)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		abort("expected " + expected + " to be an integer, got " + v)
	}
	return n
}

func (r *argReader) nextInt32(expected string) int32 {
	v := r.next(expected)
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		abort("expected " + expected + " to be a 32-bit integer, got " + v)
	}
	return int32(n)
}

func (r *argReader) end() {
	if !r.empty() {
		abort(fmt.Sprintf("ignored arguments: %v", r.args[r.i:]))
	}
}
