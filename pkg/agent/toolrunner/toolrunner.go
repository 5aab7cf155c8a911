// Package toolrunner supervises the external flashing binary: it verifies
// the tool, materializes decrypted firmware to short-lived temp files,
// captures progress line by line and securely erases every byte it wrote.
package toolrunner

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ProgressSink receives tool output one line at a time. Producers never
// assume UI affinity; consumers marshal to their own thread.
type ProgressSink interface {
	Progress(line string)
}

// ProgressFunc adapts a function to a ProgressSink
type ProgressFunc func(line string)

// Progress forwards the line
func (f ProgressFunc) Progress(line string) { f(line) }

// Runner executes flashing tools under the residue constraints
type Runner struct {
	toolsPath       string
	integrityCheck  bool
	trustedHashes   map[string]struct{}
	overwritePasses int
	log             *log.Entry
}

// NewRunner builds a Runner from the client configuration values
func NewRunner(toolsPath string, integrityCheck bool, trustedHashes []string, overwritePasses int, logEntry *log.Entry) *Runner {
	trusted := make(map[string]struct{}, len(trustedHashes))
	for _, h := range trustedHashes {
		trusted[strings.ToLower(h)] = struct{}{}
	}
	if overwritePasses < 1 {
		overwritePasses = 3
	}
	return &Runner{
		toolsPath:       toolsPath,
		integrityCheck:  integrityCheck,
		trustedHashes:   trusted,
		overwritePasses: overwritePasses,
		log:             logEntry.WithField("component", "toolrunner"),
	}
}

// Run verifies the tool, materializes the buffers, substitutes the
// argument template and waits for the tool to finish. It takes ownership
// of every buffer; each is zeroized as soon as its temp file is written,
// and all temp files are overwritten and unlinked on every path out.
// A nil return means the tool exited zero.
func (r *Runner) Run(ctx context.Context, toolName string, argTemplate string, buffers map[string]*cryptoutil.Secret, sink ProgressSink) error {
	defer closeAll(buffers)

	toolPath, err := r.locate(toolName)
	if err != nil {
		return err
	}
	if err := r.verify(toolName, toolPath); err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "flashguard-")
	if err != nil {
		return errors.Wrap(err, "creating temp directory")
	}
	paths := make(map[string]string, len(buffers))
	defer r.scrub(workDir, paths)

	for name, buf := range buffers {
		path := filepath.Join(workDir, uuid.New().String()+"-"+filepath.Base(name))
		if err := writeExclusive(path, buf.Bytes()); err != nil {
			return errors.Wrapf(err, "materializing %q", name)
		}
		buf.Close()
		paths[name] = path
	}

	args, err := substituteArgs(argTemplate, paths)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, toolPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "attaching stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "attaching stderr")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %q", toolName)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go forwardLines(&wg, stdout, sink)
	go forwardLines(&wg, stderr, sink)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ToolFailedError{Name: toolName, ExitCode: exitErr.ExitCode()}
		}
		return errors.Wrapf(err, "waiting for %q", toolName)
	}
	return nil
}

func (r *Runner) locate(toolName string) (string, error) {
	path := filepath.Join(r.toolsPath, filepath.Base(toolName))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &ToolMissingError{Name: toolName}
	}
	return path, nil
}

// verify hashes the tool binary and compares against the allowlist. An
// empty allowlist downgrades to advisory mode: the hash is logged and the
// tool passes, suitable for development only.
func (r *Runner) verify(toolName string, toolPath string) error {
	f, err := os.Open(toolPath)
	if err != nil {
		return &ToolMissingError{Name: toolName}
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return errors.Wrapf(err, "hashing %q", toolName)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))

	if !r.integrityCheck || len(r.trustedHashes) == 0 {
		r.log.WithFields(log.Fields{
			"tool": toolName,
			"hash": sum,
		}).Warn("tool integrity check is advisory, tool accepted unverified")
		return nil
	}
	if _, ok := r.trustedHashes[sum]; !ok {
		return &ToolUntrustedError{Name: toolName, Hash: sum}
	}
	return nil
}

// substituteArgs replaces every {artifact-name} placeholder with its
// materialized path and splits the template on whitespace
func substituteArgs(argTemplate string, paths map[string]string) ([]string, error) {
	substituted := argTemplate
	for name, path := range paths {
		substituted = strings.ReplaceAll(substituted, "{"+name+"}", path)
	}
	if strings.Contains(substituted, "{") {
		return nil, errors.Errorf("argument template has unresolved placeholders: %s", substituted)
	}
	return strings.Fields(substituted), nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func forwardLines(wg *sync.WaitGroup, r io.Reader, sink ProgressSink) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if sink != nil {
			sink.Progress(scanner.Text())
		}
	}
}

// scrub overwrites every materialized file with random bytes before
// unlinking it, then removes the work directory. A failed overwrite still
// unlinks.
func (r *Runner) scrub(workDir string, paths map[string]string) {
	for name, path := range paths {
		if err := r.overwriteFile(path); err != nil {
			r.log.WithFields(log.Fields{
				"artifact": name,
				"error":    err.Error(),
			}).Error("secure overwrite failed, falling back to unlink")
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.WithField("artifact", name).Error("failed to unlink temp file")
		}
	}
	if err := os.RemoveAll(workDir); err != nil {
		r.log.WithField("error", err.Error()).Error("failed to remove temp directory")
	}
}

func (r *Runner) overwriteFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	scratch := make([]byte, info.Size())
	defer cryptoutil.Zeroize(scratch)

	for pass := 0; pass < r.overwritePasses; pass++ {
		if err := fillRandom(scratch); err != nil {
			return err
		}
		if _, err := f.WriteAt(scratch, 0); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func closeAll(buffers map[string]*cryptoutil.Secret) {
	for _, buf := range buffers {
		buf.Close()
	}
}
