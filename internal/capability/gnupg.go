package capability

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/log"
)

// Config directives understood by SetConfigValue.
const (
	DirectiveBinaryPath  = "gpg_binary_path"
	DirectiveInitialized = "gpg_plugin_initialized"
)

// Failure strings reported to pages. Pages match on these.
const (
	ErrInternal          = "Internal error"
	ErrNoSecretKey       = "Secret key not available"
	ErrNoPublicKey       = "Public key not available"
	ErrUnknownGpg        = "Unknown gpg error"
	ErrBadSignature      = "Bad signature"
	ErrSignatureNotFound = "Signature not found or unreadable"
	ErrUnexpectedOutput  = "Unexpected gpg output"
	ErrAlreadyHaveKey    = "Already have key"
	ErrKeyNotTrusted     = "Key not trusted"
	ErrBadPublicKey      = "Key expired or revoked"
	ErrAlreadySigned     = "Key/Uid already signed"
	ErrBadPassphrase     = "Bad passphrase or couldn't talk to gpg-agent"
)

const (
	defaultBinaryPath      = "/usr/bin/gpg"
	terminationGracePeriod = 5 * time.Second
	maxStderrBytes         = 64 * 1024
	statusPrefix           = "[GNUPG:] "
)

// INV_RECP reason codes.
const (
	invRecpNotTrusted = "10"
	invRecpNotFound1  = "0"
	invRecpNotFound2  = "1"
)

var trustLevels = map[byte]string{
	'f': "TRUST_FULL",
	'u': "TRUST_ULTIMATE",
	'i': "TRUST_INVALID",
	'r': "TRUST_REVOKED",
	'e': "TRUST_EXPIRED",
	'-': "TRUST_UNKNOWN",
	'q': "TRUST_UNKNOWN",
	'n': "TRUST_UNTRUSTED",
	'm': "TRUST_MARGINAL",
}

// GnuPG runs the gpg executable for every operation. It does nothing until
// both directives have been pushed through SetConfigValue.
type GnuPG struct {
	mu          sync.RWMutex
	binaryPath  string
	initialized bool

	home   string
	grace  time.Duration
	logger *slog.Logger
}

// Option configures a GnuPG engine.
type Option func(*GnuPG)

// WithHome sets GNUPGHOME for every gpg invocation.
func WithHome(dir string) Option {
	return func(g *GnuPG) { g.home = dir }
}

// WithGracePeriod sets how long a cancelled gpg gets between SIGTERM and
// SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(g *GnuPG) { g.grace = d }
}

// NewGnuPG returns an uninitialized engine.
func NewGnuPG(opts ...Option) *GnuPG {
	g := &GnuPG{
		binaryPath: defaultBinaryPath,
		grace:      terminationGracePeriod,
		logger:     log.WithComponent("gnupg"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetConfigValue applies a configuration directive. Booleans accept only
// "true" and "false". Unknown directives are rejected.
func (g *GnuPG) SetConfigValue(_ context.Context, name, value string) (Result, error) {
	var res BoolResult

	g.mu.Lock()
	defer g.mu.Unlock()

	switch name {
	case DirectiveBinaryPath:
		g.binaryPath = value
		res.RetBool = true
	case DirectiveInitialized:
		switch value {
		case "true":
			g.initialized = true
			res.RetBool = true
		case "false":
			g.initialized = false
			res.RetBool = true
		default:
			g.logger.Warn("invalid boolean directive value", "directive", name, "value", value)
		}
	default:
		g.logger.Warn("unknown config directive", "directive", name)
	}
	return res, nil
}

// Installed reports whether the configured binary exists.
func (g *GnuPG) Installed() bool {
	path, _ := g.settings()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (g *GnuPG) settings() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.binaryPath, g.initialized
}

func (g *GnuPG) GetVersion(ctx context.Context) (Result, error) {
	var res StringResult
	out, err := g.run(ctx, "--version")
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}
	if out.exitCode != 0 {
		res.Fail(ErrInternal)
		return res, nil
	}
	res.RetString = out.plain
	return res, nil
}

func (g *GnuPG) Encrypt(ctx context.Context, text string, targetKeyIDs, hiddenKeyIDs []string, alwaysTrust bool, signingKey string) (Result, error) {
	var res EncryptResult

	dir, err := newWorkDir()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	defer dir.remove()

	in, err := dir.write("raw.txt", text)
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	outFile := dir.path("raw.txt.asc")

	args := []string{"--output", outFile, "--encrypt", "--armor"}
	if signingKey != "" {
		args = append(args, "--sign", "--local-user", signingKey)
	}
	if alwaysTrust {
		args = append(args, "--always-trust")
	}
	for _, id := range targetKeyIDs {
		args = append(args, "--recipient", id)
	}
	for _, id := range hiddenKeyIDs {
		args = append(args, "--hidden-recipient", id)
	}
	args = append(args, in)

	out, err := g.run(ctx, args...)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}
	res.Debug = out.statusText()

	if out.exitCode != 0 {
		switch line, ok := out.status.first("INV_RECP"); {
		case len(out.status) == 0:
			res.Fail(ErrUnknownGpg)
		case ok:
			switch line.arg(0) {
			case invRecpNotTrusted:
				res.Fail(ErrKeyNotTrusted)
			case invRecpNotFound1, invRecpNotFound2:
				res.Fail(ErrNoPublicKey)
			default:
				res.Fail(ErrBadPublicKey)
			}
		default:
			res.Fail(ErrUnknownGpg)
		}
		return res, nil
	}

	if len(out.status) == 0 {
		res.Fail(ErrUnknownGpg)
		return res, nil
	}
	if signingKey != "" && !out.status.has("SIG_CREATED") {
		res.Fail(ErrUnexpectedOutput)
		return res, nil
	}
	if out.status.last().keyword != "END_ENCRYPTION" {
		res.Fail(ErrUnexpectedOutput)
		return res, nil
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		res.Fail(ErrUnknownGpg)
		return res, nil
	}
	res.CipherText = string(data)
	return res, nil
}

func (g *GnuPG) Decrypt(ctx context.Context, cipherText string) (Result, error) {
	var res DecryptResult

	dir, err := newWorkDir()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	defer dir.remove()

	in, err := dir.write("cipher.asc", cipherText)
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	outFile := dir.path("cipher.plain")

	out, err := g.run(ctx, "--output", outFile, "--decrypt", in)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}

	signed := out.status.has("SIG_ID") || out.status.has("GOODSIG") || out.status.has("BADSIG")

	if out.exitCode != 0 {
		switch {
		case len(out.status) == 0:
			res.Fail(ErrUnknownGpg)
		case out.status.has("DECRYPTION_FAILED"):
			res.Fail(ErrNoSecretKey)
		case signed && out.status.has("BADSIG"):
			res.Fail(ErrBadSignature)
		case signed && out.status.has("NODATA"):
			res.Fail(ErrSignatureNotFound)
		default:
			res.Fail(ErrUnknownGpg)
		}
		return res, nil
	}

	if !out.status.has("DECRYPTION_OKAY") || !out.status.has("END_DECRYPTION") {
		res.Fail(ErrUnexpectedOutput)
		return res, nil
	}
	if signed {
		good, ok := out.status.first("GOODSIG")
		if !ok || !out.status.has("VALIDSIG") {
			res.Fail(ErrUnexpectedOutput)
			return res, nil
		}
		res.Signer = good.argsAfter(1)
		res.TrustLevel = out.status.trust()
	}
	res.Debug = out.statusText()

	data, err := os.ReadFile(outFile)
	if err != nil {
		res.Fail(ErrUnknownGpg)
		return res, nil
	}
	res.Data = string(data)
	return res, nil
}

func (g *GnuPG) Sign(ctx context.Context, text, keyID string, clearSign bool) (Result, error) {
	var res StringResult

	dir, err := newWorkDir()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	defer dir.remove()

	in, err := dir.write("raw.txt", text)
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	outFile := dir.path("raw.txt.asc")

	mode := "--detach-sign"
	if clearSign {
		mode = "--clearsign"
	}
	out, err := g.run(ctx, "--output", outFile, "--armor", mode, "--local-user", keyID, in)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}

	if out.exitCode != 0 {
		// gpg is silent when the secret key is missing
		switch {
		case len(out.status) == 0:
			res.Fail(ErrNoSecretKey)
		case out.status.has("BAD_PASSPHRASE"):
			res.Fail(ErrBadPassphrase)
		default:
			res.Fail(ErrUnknownGpg)
		}
		return res, nil
	}
	if !out.status.has("SIG_CREATED") {
		res.Fail(ErrUnexpectedOutput)
		return res, nil
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		res.Fail(ErrUnknownGpg)
		return res, nil
	}
	res.RetString = string(data)
	return res, nil
}

func (g *GnuPG) Verify(ctx context.Context, text, signature string) (Result, error) {
	var res SignerResult

	dir, err := newWorkDir()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	defer dir.remove()

	signedFile, err := dir.write("signed.txt", text)
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}

	args := []string{"--verify"}
	if signature != "" {
		sigFile, err := dir.write("signature.asc", signature)
		if err != nil {
			res.Fail(ErrInternal)
			return res, nil
		}
		args = append(args, sigFile)
	}
	args = append(args, signedFile)

	out, err := g.run(ctx, args...)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}

	if out.exitCode != 0 {
		switch {
		case len(out.status) == 0:
			res.Fail(ErrUnknownGpg)
		case out.status.has("BADSIG"):
			res.Fail(ErrBadSignature)
		case out.status.has("NODATA"):
			res.Fail(ErrSignatureNotFound)
		default:
			res.Fail(ErrUnknownGpg)
		}
		return res, nil
	}

	good, ok := out.status.first("GOODSIG")
	if !ok || !out.status.has("VALIDSIG") {
		res.Fail(ErrUnexpectedOutput)
		return res, nil
	}
	res.Signer = good.argsAfter(1)
	res.TrustLevel = out.status.trust()
	res.Debug = out.statusText()
	return res, nil
}

func (g *GnuPG) GetKey(ctx context.Context, keyID, keyserver string) (Result, error) {
	var res BoolResult

	var args []string
	if keyserver != "" {
		args = append(args, "--keyserver", keyserver)
	}
	args = append(args, "--recv-key", keyID)

	out, err := g.run(ctx, args...)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}

	if out.exitCode != 0 {
		switch {
		case len(out.status) == 0:
			res.Fail(ErrUnknownGpg)
		case out.status.has("NODATA"):
			res.Fail(ErrNoPublicKey)
		default:
			res.Fail(ErrUnknownGpg)
		}
		return res, nil
	}

	switch {
	case out.status.has("IMPORTED"):
		res.RetBool = true
	case out.status.has("IMPORT_OK"):
		res.Fail(ErrAlreadyHaveKey)
	default:
		res.Fail(ErrUnexpectedOutput)
	}
	return res, nil
}

func (g *GnuPG) GetUids(ctx context.Context, keyID string) (Result, error) {
	res := UidsResult{Uids: []string{}}

	out, err := g.run(ctx, "--with-colons", "--fixed-list-mode", "--fingerprint", keyID)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}
	if out.exitCode != 0 {
		res.Fail(ErrNoPublicKey)
		return res, nil
	}

	for line := range strings.SplitSeq(out.plain, "\n") {
		parts := strings.Split(line, ":")
		if parts[0] == "uid" && len(parts) > 9 {
			res.Uids = append(res.Uids, parts[9])
		}
	}
	return res, nil
}

func (g *GnuPG) GetFingerprint(ctx context.Context, keyID string) (Result, error) {
	var res StringResult

	out, err := g.run(ctx, "--fingerprint", keyID)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}
	if out.exitCode != 0 {
		res.Fail(ErrNoPublicKey)
		return res, nil
	}
	res.RetString = out.plain
	return res, nil
}

func (g *GnuPG) GetTrust(ctx context.Context, keyID string) (Result, error) {
	var res StringResult

	out, err := g.run(ctx, "--fixed-list-mode", "--with-colons", "--list-keys", keyID)
	if err != nil {
		if cerr := g.runFailed(ctx, &res.Status, err); cerr != nil {
			return nil, cerr
		}
		return res, nil
	}
	if out.exitCode != 0 {
		res.Fail(ErrNoPublicKey)
		return res, nil
	}

	for line := range strings.SplitSeq(out.plain, "\n") {
		parts := strings.Split(line, ":")
		if parts[0] != "pub" {
			continue
		}
		if len(parts) > 1 && parts[1] != "" {
			res.RetString = trustLevels[parts[1][0]]
		}
		break
	}
	return res, nil
}

// SignUid certifies uid on keyID at level through an --edit-key
// conversation on the command and status descriptors.
func (g *GnuPG) SignUid(ctx context.Context, keyID, uid, level string) (Result, error) {
	var res BoolResult

	path, ok := g.settings()
	if !ok {
		res.Fail(ErrInternal)
		return res, nil
	}

	cmd := g.command(path, "--command-fd", "0", "--default-cert-level", level, "--edit-key", keyID)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.Fail(ErrInternal)
		return res, nil
	}
	if err := cmd.Start(); err != nil {
		g.logger.Error("failed to start gpg", "error", err)
		res.Fail(ErrInternal)
		return res, nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.logger.Warn("gpg call cancelled, sending SIGTERM")
			_ = cmd.Process.Signal(syscall.SIGTERM)
			grace := time.NewTimer(g.grace)
			defer grace.Stop()
			select {
			case <-grace.C:
				_ = cmd.Process.Kill()
			case <-done:
			}
		case <-done:
		}
	}()

	conv := &conversation{in: stdin, out: bufio.NewReader(stdout)}
	outcome := conv.signUid(uid)

	_ = stdin.Close()
	_, _ = io.Copy(io.Discard, stdout)
	_ = cmd.Wait()
	close(done)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch outcome {
	case "":
		res.RetBool = true
	default:
		res.Fail(outcome)
	}
	return res, nil
}

// conversation drives an interactive gpg session.
type conversation struct {
	in  io.Writer
	out *bufio.Reader
}

// next returns the next status line, skipping anything else gpg prints.
func (c *conversation) next() (statusLine, bool) {
	for {
		line, err := c.out.ReadString('\n')
		if s, ok := parseStatusLine(strings.TrimRight(line, "\r\n")); ok {
			return s, true
		}
		if err != nil {
			return statusLine{}, false
		}
	}
}

func (c *conversation) expect(keyword string) bool {
	s, ok := c.next()
	return ok && s.keyword == keyword
}

func (c *conversation) send(line string) bool {
	_, err := io.WriteString(c.in, line+"\n")
	return err == nil
}

// signUid returns "" on success or the failure string.
func (c *conversation) signUid(uid string) string {
	if !c.expect("GET_LINE") || !c.send(uid) || !c.expect("GOT_IT") {
		return ErrUnexpectedOutput
	}
	if !c.expect("GET_LINE") || !c.send("sign") || !c.expect("GOT_IT") {
		return ErrUnexpectedOutput
	}

	s, ok := c.next()
	switch {
	case !ok:
		return ErrUnexpectedOutput
	case s.keyword == "ALREADY_SIGNED":
		c.send("exit")
		return ErrAlreadySigned
	case s.keyword != "GET_BOOL":
		return ErrUnexpectedOutput
	}

	if !c.send("Y") || !c.expect("GOT_IT") {
		return ErrUnexpectedOutput
	}
	if !c.expect("USERID_HINT") || !c.expect("NEED_PASSPHRASE") {
		return ErrUnexpectedOutput
	}

	s, ok = c.next()
	switch {
	case !ok:
		return ErrUnexpectedOutput
	case s.keyword == "BAD_PASSPHRASE":
		c.send("exit")
		return ErrBadPassphrase
	case s.keyword != "GOOD_PASSPHRASE":
		return ErrUnexpectedOutput
	}

	if !c.expect("GET_LINE") {
		return ErrUnexpectedOutput
	}
	c.send("save")
	return ""
}

// runFailed records an internal error on st, or returns the context error
// when the call was cancelled.
func (g *GnuPG) runFailed(ctx context.Context, st *Status, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !errors.Is(err, errNotInitialized) {
		g.logger.Error("gpg invocation failed", "error", err)
	}
	st.Fail(ErrInternal)
	return nil
}

var errNotInitialized = errors.New("gpg engine not initialized")

type output struct {
	status   statusLines
	plain    string
	exitCode int
}

func (o output) statusText() string {
	var b strings.Builder
	for _, s := range o.status {
		b.WriteString(statusPrefix)
		b.WriteString(s.keyword)
		if s.args != "" {
			b.WriteByte(' ')
			b.WriteString(s.args)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *GnuPG) command(path string, args ...string) *exec.Cmd {
	base := []string{"--use-agent", "--status-fd", "1", "--quiet", "--batch", "--no-tty"}
	cmd := exec.Command(path, append(base, args...)...)
	cmd.Dir = "/"
	cmd.Env = os.Environ()
	if g.home != "" {
		cmd.Env = append(cmd.Env, "GNUPGHOME="+g.home)
	}
	return cmd
}

// run executes gpg to completion. A non-zero exit is reported in the output,
// not as an error. Cancelling ctx terminates the process.
func (g *GnuPG) run(ctx context.Context, args ...string) (output, error) {
	path, ok := g.settings()
	if !ok {
		return output{}, errNotInitialized
	}

	cmd := g.command(path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return output{}, fmt.Errorf("start gpg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		g.terminate(cmd, waitErr)
		return output{}, ctx.Err()
	case err := <-waitErr:
		out := splitOutput(stdout.String())
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return output{}, fmt.Errorf("wait for gpg: %w", err)
			}
			out.exitCode = exitErr.ExitCode()
			g.logger.Debug("gpg exited with non-zero status", "exit_code", out.exitCode, "stderr", truncate(stderr.String()))
		}
		return out, nil
	}
}

// terminate sends SIGTERM, then SIGKILL once the grace period lapses.
func (g *GnuPG) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd.Process == nil {
		return
	}
	g.logger.Warn("gpg call cancelled, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		g.logger.Debug("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(g.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
	case <-grace.C:
		g.logger.Warn("gpg did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			g.logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

func truncate(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	return s[:maxStderrBytes] + "\n... (truncated)"
}

type statusLine struct {
	keyword string
	args    string
}

func parseStatusLine(line string) (statusLine, bool) {
	rest, ok := strings.CutPrefix(line, statusPrefix)
	if !ok {
		return statusLine{}, false
	}
	kw, args, _ := strings.Cut(rest, " ")
	if kw == "" {
		return statusLine{}, false
	}
	return statusLine{keyword: kw, args: args}, true
}

func (s statusLine) arg(i int) string {
	f := strings.Fields(s.args)
	if i < len(f) {
		return f[i]
	}
	return ""
}

// argsAfter joins every argument from index i on.
func (s statusLine) argsAfter(i int) string {
	f := strings.Fields(s.args)
	if i >= len(f) {
		return ""
	}
	return strings.Join(f[i:], " ")
}

type statusLines []statusLine

func (l statusLines) first(keyword string) (statusLine, bool) {
	for _, s := range l {
		if s.keyword == keyword {
			return s, true
		}
	}
	return statusLine{}, false
}

func (l statusLines) has(keyword string) bool {
	_, ok := l.first(keyword)
	return ok
}

func (l statusLines) last() statusLine {
	if len(l) == 0 {
		return statusLine{}
	}
	return l[len(l)-1]
}

// trust returns the first TRUST_* keyword.
func (l statusLines) trust() string {
	for _, s := range l {
		if strings.HasPrefix(s.keyword, "TRUST_") {
			return s.keyword
		}
	}
	return ""
}

// splitOutput separates status lines from everything else gpg wrote to
// stdout.
func splitOutput(stdout string) output {
	var out output
	var plain strings.Builder
	for line := range strings.SplitSeq(stdout, "\n") {
		if s, ok := parseStatusLine(strings.TrimRight(line, "\r")); ok {
			out.status = append(out.status, s)
			continue
		}
		if line == "" {
			continue
		}
		plain.WriteString(line)
		plain.WriteByte('\n')
	}
	out.plain = plain.String()
	return out
}

type workDir string

func newWorkDir() (workDir, error) {
	dir, err := os.MkdirTemp("", "gpgbridge-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return workDir(dir), nil
}

func (d workDir) path(name string) string { return filepath.Join(string(d), name) }

func (d workDir) write(name, data string) (string, error) {
	p := d.path(name)
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

func (d workDir) remove() { _ = os.RemoveAll(string(d)) }
