package commands

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/opd-ai/noisemobile/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

var publicKeyLine = regexp.MustCompile(`Public key: ([0-9a-f]{64})`)

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	assert.Regexp(t, publicKeyLine, out)
	assert.NotContains(t, out, "Stored identity")
}

func TestKeygenStoreAndPubkey(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--store", dir, "-p", "correct horse", "keygen", "--id", "phone")
	require.NoError(t, err)
	assert.Contains(t, out, `Stored identity "phone"`)
	m := publicKeyLine.FindStringSubmatch(out)
	require.Len(t, m, 2)

	out, err = run(t, "--store", dir, "-p", "correct horse", "pubkey", "phone")
	require.NoError(t, err)
	assert.Equal(t, m[1], strings.TrimSpace(out))

	_, err = run(t, "--store", dir, "-p", "correct horse", "keygen", "--id", "phone")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "--store", dir, "-p", "wrong", "pubkey", "phone")
	assert.Error(t, err)
}

func TestKeygenStoreRequirements(t *testing.T) {
	_, err := run(t, "-p", "secret", "keygen", "--id", "phone")
	assert.ErrorContains(t, err, "--store")

	t.Setenv(passphraseEnv, "")
	_, err = run(t, "--store", t.TempDir(), "keygen", "--id", "phone")
	assert.ErrorContains(t, err, "passphrase")
}

func TestPassphraseFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(passphraseEnv, "from env")

	_, err := run(t, "--store", dir, "keygen", "--id", "laptop")
	require.NoError(t, err)
	_, err = run(t, "--store", dir, "pubkey", "laptop")
	require.NoError(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "keygen")
	assert.ErrorContains(t, err, "--log-level")
}

func TestDemo(t *testing.T) {
	tests := []struct {
		pattern string
		sizes   []string
	}{
		{"XX", []string{"32 bytes", "96 bytes", "64 bytes"}},
		{"IK", []string{"96 bytes", "48 bytes"}},
		{"nn", []string{"32 bytes", "48 bytes"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			out, err := run(t, "demo", "--pattern", tt.pattern, "-n", "4")
			require.NoError(t, err)
			for i, size := range tt.sizes {
				assert.Contains(t, out, "Handshake message "+string(rune('1'+i))+": "+size)
			}
			assert.Contains(t, out, "Noise_"+strings.ToUpper(tt.pattern)+"_25519_ChaChaPoly_BLAKE2s")
			assert.Contains(t, out, `Received "sequenced message 4"`)
			assert.Contains(t, out, "Replay rejected")
			assert.Contains(t, out, "Batch: 4 replies decrypted")
		})
	}
}

func TestDemoWithStoredIdentity(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--store", dir, "-p", "pw", "keygen", "--id", "server")
	require.NoError(t, err)

	out, err := run(t, "--store", dir, "-p", "pw", "demo", "--pattern", "IK", "--identity", "server")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch: 3 replies decrypted")
}

func TestDemoRejectsBadInput(t *testing.T) {
	_, err := run(t, "demo", "-n", "0")
	assert.Error(t, err)

	_, err = run(t, "demo", "--pattern", "KK")
	assert.Error(t, err)

	_, err = run(t, "demo", "--window", "7")
	assert.Error(t, err)
}

func TestWindowDecode(t *testing.T) {
	w, err := replay.NewWindow(64)
	require.NoError(t, err)
	for _, c := range []uint64{1, 3, 10} {
		require.NoError(t, w.Accept(c))
	}
	data := w.Serialize()

	out, err := run(t, "window", hex.EncodeToString(data))
	require.NoError(t, err)
	assert.Contains(t, out, "Window size:   64")
	assert.Contains(t, out, "Last received: 10")
	assert.Contains(t, out, "Seen counters: 10 3 1")

	path := filepath.Join(t.TempDir(), "window.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	fileOut, err := run(t, "window", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, out, fileOut)
}

func TestWindowDecodeEmpty(t *testing.T) {
	w, err := replay.NewWindow(128)
	require.NoError(t, err)

	out, err := run(t, "window", hex.EncodeToString(w.Serialize()))
	require.NoError(t, err)
	assert.Contains(t, out, "Window size:   128")
	assert.Contains(t, out, "Seen counters: none")
}

func TestWindowDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{"window"}},
		{"bad hex", []string{"window", "zz"}},
		{"too short", []string{"window", "0100"}},
		{"bad version", []string{"window", "02" + strings.Repeat("00", 16+8)}},
		{"both inputs", []string{"window", "--file", "x", "00"}},
		{"missing file", []string{"window", "--file", filepath.Join(t.TempDir(), "absent")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
