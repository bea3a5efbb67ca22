package capability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

const fakeGpg = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
echo "$@" > "$FAKE_GPG_ARGS"
if [ -n "$FAKE_GPG_SLEEP" ]; then exec sleep "$FAKE_GPG_SLEEP"; fi
if [ -n "$out" ] && [ -n "$FAKE_GPG_FILE" ]; then printf '%s' "$FAKE_GPG_FILE" > "$out"; fi
case "$FAKE_GPG_CONVERSE" in
ok|already|badpass)
  echo "[GNUPG:] GET_LINE keyedit.prompt"; read l; echo "[GNUPG:] GOT_IT"
  echo "[GNUPG:] GET_LINE keyedit.prompt"; read l; echo "[GNUPG:] GOT_IT"
  if [ "$FAKE_GPG_CONVERSE" = already ]; then echo "[GNUPG:] ALREADY_SIGNED 1234ABCD"; read l; exit 0; fi
  echo "[GNUPG:] GET_BOOL sign_uid.okay"; read l; echo "[GNUPG:] GOT_IT"
  echo "[GNUPG:] USERID_HINT 1234ABCD Alice"
  echo "[GNUPG:] NEED_PASSPHRASE 1234ABCD 1234ABCD 1 0"
  if [ "$FAKE_GPG_CONVERSE" = badpass ]; then echo "[GNUPG:] BAD_PASSPHRASE 1234ABCD"; read l; exit 0; fi
  echo "[GNUPG:] GOOD_PASSPHRASE"
  echo "[GNUPG:] GET_LINE keyedit.prompt"; read l
  exit 0
  ;;
esac
printf '%s' "$FAKE_GPG_STDOUT"
exit ${FAKE_GPG_EXIT:-0}
`

type fakeRun struct {
	stdout string
	file   string
	exit   string
}

// newFakeGnuPG returns an initialized engine backed by a shell script and the
// path where the script records its arguments.
func newFakeGnuPG(t *testing.T, run fakeRun) (*GnuPG, string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "gpg")
	require.NoError(t, os.WriteFile(script, []byte(fakeGpg), 0o755))

	argsFile := filepath.Join(dir, "args")
	t.Setenv("FAKE_GPG_ARGS", argsFile)
	t.Setenv("FAKE_GPG_STDOUT", run.stdout)
	t.Setenv("FAKE_GPG_FILE", run.file)
	t.Setenv("FAKE_GPG_EXIT", run.exit)
	t.Setenv("FAKE_GPG_SLEEP", "")
	t.Setenv("FAKE_GPG_CONVERSE", "")

	g := NewGnuPG(WithGracePeriod(100 * time.Millisecond))
	ctx := context.Background()
	res, err := g.SetConfigValue(ctx, DirectiveBinaryPath, script)
	require.NoError(t, err)
	require.True(t, Accepted(res))
	res, err = g.SetConfigValue(ctx, DirectiveInitialized, "true")
	require.NoError(t, err)
	require.True(t, Accepted(res))
	return g, argsFile
}

func readArgs(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestSetConfigValue(t *testing.T) {
	g := NewGnuPG()
	ctx := context.Background()

	tests := []struct {
		name, value string
		accepted    bool
	}{
		{DirectiveBinaryPath, "/opt/gpg", true},
		{DirectiveBinaryPath, "", true},
		{DirectiveInitialized, "true", true},
		{DirectiveInitialized, "false", true},
		{DirectiveInitialized, "yes", false},
		{"gpg_key_id", "1234ABCD", false},
	}
	for _, tt := range tests {
		res, err := g.SetConfigValue(ctx, tt.name, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.accepted, Accepted(res), "%s=%q", tt.name, tt.value)
	}
}

func TestUninitializedReturnsInternalError(t *testing.T) {
	g, argsFile := newFakeGnuPG(t, fakeRun{})
	_, err := g.SetConfigValue(context.Background(), DirectiveInitialized, "false")
	require.NoError(t, err)

	res, err := g.GetVersion(context.Background())
	require.NoError(t, err)
	f := res.Fields()
	assert.Equal(t, true, f["isError"])
	assert.Equal(t, ErrInternal, f["errorStr"])

	_, statErr := os.Stat(argsFile)
	assert.True(t, os.IsNotExist(statErr), "gpg must not run")
}

func TestGetVersion(t *testing.T) {
	g, argsFile := newFakeGnuPG(t, fakeRun{stdout: "gpg (GnuPG) 2.4.5\nlibgcrypt 1.10.3\n"})

	res, err := g.GetVersion(context.Background())
	require.NoError(t, err)
	assert.True(t, Succeeded(res))
	assert.Equal(t, "gpg (GnuPG) 2.4.5\nlibgcrypt 1.10.3\n", res.Fields()["retstring"])

	args := readArgs(t, argsFile)
	assert.Contains(t, args, "--batch")
	assert.Contains(t, args, "--status-fd 1")
	assert.True(t, strings.HasSuffix(args, "--version"))
}

func TestEncrypt(t *testing.T) {
	g, argsFile := newFakeGnuPG(t, fakeRun{
		stdout: "[GNUPG:] BEGIN_ENCRYPTION 2 9\n[GNUPG:] END_ENCRYPTION\n",
		file:   "-----BEGIN PGP MESSAGE-----",
	})

	res, err := g.Encrypt(context.Background(), "hello", []string{"1234ABCD"}, []string{"5678EF01"}, true, "")
	require.NoError(t, err)
	f := res.Fields()
	assert.Equal(t, false, f["isError"])
	assert.Equal(t, "-----BEGIN PGP MESSAGE-----", f["cipherText"])
	assert.Contains(t, f["debug"], "END_ENCRYPTION")

	args := readArgs(t, argsFile)
	assert.Contains(t, args, "--encrypt --armor --always-trust --recipient 1234ABCD --hidden-recipient 5678EF01")
	assert.NotContains(t, args, "--sign")
}

func TestEncryptSigningRequiresSignature(t *testing.T) {
	g, argsFile := newFakeGnuPG(t, fakeRun{
		stdout: "[GNUPG:] BEGIN_ENCRYPTION 2 9\n[GNUPG:] END_ENCRYPTION\n",
		file:   "ct",
	})

	res, err := g.Encrypt(context.Background(), "hello", []string{"1234ABCD"}, nil, false, "FFFFFFFF")
	require.NoError(t, err)
	assert.Equal(t, ErrUnexpectedOutput, res.Fields()["errorStr"])
	assert.Contains(t, readArgs(t, argsFile), "--sign --local-user FFFFFFFF")
}

func TestEncryptInvalidRecipient(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"10", ErrKeyNotTrusted},
		{"0", ErrNoPublicKey},
		{"1", ErrNoPublicKey},
		{"4", ErrBadPublicKey},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			g, _ := newFakeGnuPG(t, fakeRun{
				stdout: "[GNUPG:] INV_RECP " + tt.reason + " 1234ABCD\n[GNUPG:] FAILURE encrypt 53\n",
				exit:   "2",
			})
			res, err := g.Encrypt(context.Background(), "hello", []string{"1234ABCD"}, nil, false, "")
			require.NoError(t, err)
			f := res.Fields()
			assert.Equal(t, true, f["isError"])
			assert.Equal(t, tt.want, f["errorStr"])
		})
	}
}

func TestSign(t *testing.T) {
	t.Run("clearsign", func(t *testing.T) {
		g, argsFile := newFakeGnuPG(t, fakeRun{
			stdout: "[GNUPG:] BEGIN_SIGNING H8\n[GNUPG:] SIG_CREATED C 1 8 01 1700000000 ABCDEF\n",
			file:   "-----BEGIN PGP SIGNED MESSAGE-----",
		})
		res, err := g.Sign(context.Background(), "hello", "1234ABCD", true)
		require.NoError(t, err)
		assert.True(t, Succeeded(res))
		assert.Equal(t, "-----BEGIN PGP SIGNED MESSAGE-----", res.Fields()["retstring"])
		assert.Contains(t, readArgs(t, argsFile), "--armor --clearsign --local-user 1234ABCD")
	})

	t.Run("missing secret key is silent", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{exit: "2"})
		res, err := g.Sign(context.Background(), "hello", "1234ABCD", false)
		require.NoError(t, err)
		assert.Equal(t, ErrNoSecretKey, res.Fields()["errorStr"])
	})

	t.Run("bad passphrase", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: "[GNUPG:] BAD_PASSPHRASE 1234ABCD\n", exit: "2"})
		res, err := g.Sign(context.Background(), "hello", "1234ABCD", false)
		require.NoError(t, err)
		assert.Equal(t, ErrBadPassphrase, res.Fields()["errorStr"])
	})
}

func TestVerify(t *testing.T) {
	t.Run("good signature", func(t *testing.T) {
		g, argsFile := newFakeGnuPG(t, fakeRun{stdout: strings.Join([]string{
			"[GNUPG:] NEWSIG",
			"[GNUPG:] GOODSIG 0123456789ABCDEF Alice Example <alice@example.com>",
			"[GNUPG:] VALIDSIG FINGERPRINT 2026-01-01 1700000000",
			"[GNUPG:] TRUST_ULTIMATE 0 pgp",
			"",
		}, "\n")})

		res, err := g.Verify(context.Background(), "signed", "sig")
		require.NoError(t, err)
		f := res.Fields()
		assert.Equal(t, false, f["isError"])
		assert.Equal(t, "Alice Example <alice@example.com>", f["signer"])
		assert.Equal(t, "TRUST_ULTIMATE", f["trustLevel"])

		args := readArgs(t, argsFile)
		assert.Contains(t, args, "signature.asc")
		assert.Contains(t, args, "signed.txt")
	})

	t.Run("clear signed text passes one file", func(t *testing.T) {
		g, argsFile := newFakeGnuPG(t, fakeRun{stdout: "[GNUPG:] BADSIG 0123456789ABCDEF Alice\n", exit: "1"})
		res, err := g.Verify(context.Background(), "signed", "")
		require.NoError(t, err)
		assert.Equal(t, ErrBadSignature, res.Fields()["errorStr"])
		assert.NotContains(t, readArgs(t, argsFile), "signature.asc")
	})

	t.Run("no data", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: "[GNUPG:] NODATA 4\n", exit: "2"})
		res, err := g.Verify(context.Background(), "x", "y")
		require.NoError(t, err)
		assert.Equal(t, ErrSignatureNotFound, res.Fields()["errorStr"])
	})
}

func TestDecrypt(t *testing.T) {
	t.Run("signed message", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{
			stdout: strings.Join([]string{
				"[GNUPG:] ENC_TO 0123456789ABCDEF 1 0",
				"[GNUPG:] DECRYPTION_OKAY",
				"[GNUPG:] SIG_ID abc 2026-01-01 1700000000",
				"[GNUPG:] GOODSIG 0123456789ABCDEF Bob <bob@example.com>",
				"[GNUPG:] VALIDSIG FPR 2026-01-01",
				"[GNUPG:] TRUST_FULL",
				"[GNUPG:] END_DECRYPTION",
				"",
			}, "\n"),
			file: "plain text",
		})
		res, err := g.Decrypt(context.Background(), "ct")
		require.NoError(t, err)
		f := res.Fields()
		assert.Equal(t, false, f["isError"])
		assert.Equal(t, "plain text", f["data"])
		assert.Equal(t, "Bob <bob@example.com>", f["signer"])
		assert.Equal(t, "TRUST_FULL", f["trustLevel"])
	})

	t.Run("no secret key", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: "[GNUPG:] DECRYPTION_FAILED\n", exit: "2"})
		res, err := g.Decrypt(context.Background(), "ct")
		require.NoError(t, err)
		assert.Equal(t, ErrNoSecretKey, res.Fields()["errorStr"])
	})
}

func TestGetKey(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		exit    string
		wantErr string
	}{
		{name: "imported", stdout: "[GNUPG:] IMPORTED 0123456789ABCDEF Alice\n[GNUPG:] IMPORT_OK 1 FPR\n"},
		{name: "already have", stdout: "[GNUPG:] IMPORT_OK 0 FPR\n", wantErr: ErrAlreadyHaveKey},
		{name: "not found", stdout: "[GNUPG:] NODATA 1\n", exit: "2", wantErr: ErrNoPublicKey},
		{name: "garbage", stdout: "[GNUPG:] KEYEXPIRED 1\n", wantErr: ErrUnexpectedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, argsFile := newFakeGnuPG(t, fakeRun{stdout: tt.stdout, exit: tt.exit})
			res, err := g.GetKey(context.Background(), "1234ABCD", "hkps://keys.example")
			require.NoError(t, err)
			f := res.Fields()
			if tt.wantErr == "" {
				assert.Equal(t, true, f["retbool"])
				assert.Equal(t, false, f["isError"])
			} else {
				assert.Equal(t, tt.wantErr, f["errorStr"])
			}
			assert.Contains(t, readArgs(t, argsFile), "--keyserver hkps://keys.example --recv-key 1234ABCD")
		})
	}
}

func TestListings(t *testing.T) {
	colons := strings.Join([]string{
		"tru::1:1700000000:0:3:1:5",
		"pub:f:4096:1:0123456789ABCDEF:1700000000:::u:::scESC::::::23::0:",
		"fpr:::::::::ABCDEF0123456789ABCDEF0123456789ABCDEF01:",
		"uid:f::::1700000000::HASH::Alice <alice@example.com>::::::::::0:",
		"uid:f::::1700000000::HASH::Alice Work <alice@work.example>::::::::::0:",
		"",
	}, "\n")

	t.Run("uids", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: colons})
		res, err := g.GetUids(context.Background(), "1234ABCD")
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice <alice@example.com>", "Alice Work <alice@work.example>"}, res.Fields()["uids"])
	})

	t.Run("trust", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: colons})
		res, err := g.GetTrust(context.Background(), "1234ABCD")
		require.NoError(t, err)
		assert.Equal(t, "TRUST_FULL", res.Fields()["retstring"])
	})

	t.Run("missing key", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{exit: "2"})
		res, err := g.GetFingerprint(context.Background(), "1234ABCD")
		require.NoError(t, err)
		assert.Equal(t, ErrNoPublicKey, res.Fields()["errorStr"])
	})

	t.Run("fingerprint strips status lines", func(t *testing.T) {
		g, _ := newFakeGnuPG(t, fakeRun{stdout: "[GNUPG:] KEY_CONSIDERED FPR 0\npub   rsa4096 2026-01-01\n      ABCD EF01\n"})
		res, err := g.GetFingerprint(context.Background(), "1234ABCD")
		require.NoError(t, err)
		assert.Equal(t, "pub   rsa4096 2026-01-01\n      ABCD EF01\n", res.Fields()["retstring"])
	})
}

func TestSignUid(t *testing.T) {
	tests := []struct {
		converse string
		wantErr  string
	}{
		{converse: "ok"},
		{converse: "already", wantErr: ErrAlreadySigned},
		{converse: "badpass", wantErr: ErrBadPassphrase},
	}
	for _, tt := range tests {
		t.Run(tt.converse, func(t *testing.T) {
			g, argsFile := newFakeGnuPG(t, fakeRun{})
			t.Setenv("FAKE_GPG_CONVERSE", tt.converse)

			res, err := g.SignUid(context.Background(), "1234ABCD", "1", "2")
			require.NoError(t, err)
			f := res.Fields()
			if tt.wantErr == "" {
				assert.Equal(t, true, f["retbool"])
			} else {
				assert.Equal(t, tt.wantErr, f["errorStr"])
			}
			assert.Contains(t, readArgs(t, argsFile), "--command-fd 0 --default-cert-level 2 --edit-key 1234ABCD")
		})
	}
}

func TestCancelTerminatesGpg(t *testing.T) {
	g, _ := newFakeGnuPG(t, fakeRun{})
	t.Setenv("FAKE_GPG_SLEEP", "30")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := g.GetVersion(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestStatusParsing(t *testing.T) {
	out := splitOutput("[GNUPG:] GOODSIG KEY Alice  Smith\nplain line\n[GNUPG:] TRUST_MARGINAL 0\n[GNUPG:]\n")
	require.Len(t, out.status, 2)
	assert.Equal(t, "GOODSIG", out.status[0].keyword)
	assert.Equal(t, "Alice Smith", out.status[0].argsAfter(1))
	assert.Equal(t, "TRUST_MARGINAL", out.status.trust())
	assert.Equal(t, "plain line\n[GNUPG:]\n", out.plain)
}
