// Package runner launches the external server executable and decides from its
// console output whether a run generated its spawn region successfully.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// successMarker is printed by every supported server version once startup has
// completed, i.e. once the spawn region has been generated.
const successMarker = `For help, type "help"`

// fatalMarkers are conditions that no amount of retrying will fix. Their
// presence in the output aborts the run immediately, even if the success
// marker also appeared.
var fatalMarkers = []string{
	"You need to agree to the EULA in order to run the server",
	"This world must be opened in an older version (like 1.6.4) to be safely converted",
}

// ErrRunFailed is returned when every attempt of a run ended without the
// server printing its success marker.
var ErrRunFailed = errors.New("the server didn't run successfully")

// Result describes the classification of a single server run.
type Result int

const (
	// Success means the output contained the success marker and no fatal
	// marker.
	Success Result = iota
	// TransientFailure means the output contained neither a fatal marker nor
	// the success marker. Such runs may be retried.
	TransientFailure
	// FatalFailure means the output contained a known unrecoverable error
	// message. Such runs are never retried.
	FatalFailure
)

// Outcome is the classification of one server run together with the console
// line that caused it, for fatal failures.
type Outcome struct {
	Result Result
	Reason string
}

// Classify scans captured server output and determines the outcome of the
// run. Fatal markers take precedence over the success marker.
func Classify(output string) Outcome {
	for _, marker := range fatalMarkers {
		if strings.Contains(output, marker) {
			return Outcome{Result: FatalFailure, Reason: marker}
		}
	}
	if strings.Contains(output, successMarker) {
		return Outcome{Result: Success}
	}
	return Outcome{Result: TransientFailure, Reason: "success marker not found in output"}
}

// Runner supervises runs of a server executable. The zero value is not
// usable; populate at least Dir.
type Runner struct {
	// Log is the logger used for progress and retry notices. If nil, Log is
	// set to slog.Default().
	Log *slog.Logger
	// Java is the name or path of the java executable used to launch the
	// server jar. Defaults to "java".
	Java string
	// Dir is the working directory the server is started in, i.e. the server
	// root holding eula.txt, server.properties and the world directory.
	Dir string
	// Exec launches the server jar once and returns its combined console
	// output. If nil, a real child process is started. Tests may replace it.
	Exec func(jar string) (string, error)
}

// RunOnce performs a single supervised run without retries.
func (r *Runner) RunOnce(jar string) error {
	return r.Run(jar, false, 1)
}

// Run launches the server jar and classifies its output, retrying transient
// failures until maxAttempts runs have been made. Fatal failures abort
// immediately without consuming the remaining attempts. The captured output
// is printed when printOutput is set and also whenever a run did not succeed,
// so that failures are always diagnosable. The wall-clock duration of the
// whole call is logged on return.
func (r *Runner) Run(jar string, printOutput bool, maxAttempts int) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("running server", "jar", jar)
	start := time.Now()
	defer func() {
		log.Info("server run finished", "took", time.Since(start).Round(time.Millisecond))
	}()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt != 0 {
			log.Info("failed, retrying", "attempt", attempt+1, "max", maxAttempts)
		}
		output, err := r.exec(jar)
		if err != nil {
			// The process could not be started or exited in a way the
			// classification below cannot explain. Not retryable.
			if output != "" {
				fmt.Print(output)
			}
			return fmt.Errorf("launch server: %w", err)
		}
		if printOutput {
			fmt.Print(output)
		}
		switch out := Classify(output); out.Result {
		case Success:
			return nil
		case FatalFailure:
			if !printOutput {
				fmt.Print(output)
			}
			return fmt.Errorf("%w: %v", ErrRunFailed, out.Reason)
		case TransientFailure:
			if attempt == maxAttempts-1 {
				if !printOutput {
					fmt.Print(output)
				}
				return ErrRunFailed
			}
		}
	}
	return ErrRunFailed
}

// exec starts the server process and waits for it to exit, returning the
// merged stdout/stderr stream. The server is asked to shut down right away by
// feeding a single stop command on stdin; closing stdin afterwards lets it
// begin a graceful shutdown once startup completes.
func (r *Runner) exec(jar string) (string, error) {
	if r.Exec != nil {
		return r.Exec(jar)
	}
	java := r.Java
	if java == "" {
		java = "java"
	}
	abs, err := filepath.Abs(jar)
	if err != nil {
		return "", err
	}
	cmd := exec.Command(java, "-jar", abs, "nogui")
	cmd.Dir = r.Dir
	cmd.Stdin = strings.NewReader("stop\n")
	output, err := cmd.CombinedOutput()
	return string(output), err
}
