package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level=disabled"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSource(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0644))
	return dir
}

func TestParseMagic(t *testing.T) {
	tests := []struct {
		input   string
		want    uint32
		wantErr bool
	}{
		{"", common.DefaultMagic, false},
		{"0x4E5A4445", 0x4E5A4445, false},
		{"42", 42, false},
		{"0", 0, false},
		{"0xFFFFFFFF", 0xFFFFFFFF, false},
		{"0x100000000", 0, true},
		{"magic", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseMagic(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreatePeekExtract(t *testing.T) {
	src := writeSource(t)
	archivePath := filepath.Join(t.TempDir(), "bundle.edz")

	out, err := runCmd(t, src, "-o", archivePath, "-t", "0x2A", "--uid", "0123456789abcdeffedcba9876543210", "--delta")
	require.NoError(t, err)
	assert.Equal(t, archivePath+" uid=0123456789abcdeffedcba9876543210\n", out)

	out, err = runCmd(t, "-p", archivePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "magic=0x4E5A4445 type_id=42 uid=0123456789abcdeffedcba9876543210 delta=true")
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, lines[1:])

	out, err = runCmd(t, "-p", archivePath, "--dir", "sub")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\nb.txt\n"))

	restore := filepath.Join(t.TempDir(), "restore")
	out, err = runCmd(t, "-d", archivePath, "-o", restore)
	require.NoError(t, err)
	assert.Contains(t, out, "type_id=42")

	data, err := os.ReadFile(filepath.Join(restore, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestCreateDefaultOutput(t *testing.T) {
	src := writeSource(t)

	out, err := runCmd(t, src)
	require.NoError(t, err)

	expected := filepath.Join(src, filepath.Base(src)+common.EdzFileExtension)
	assert.True(t, strings.HasPrefix(out, expected+" uid="))
	assert.FileExists(t, expected)
}

func TestCreateInvalidFlags(t *testing.T) {
	src := writeSource(t)

	_, err := runCmd(t, src, "-m", "0x1FFFFFFFF")
	assert.ErrorIs(t, err, common.ErrInvalidField)

	_, err = runCmd(t, src, "--uid", "short")
	assert.ErrorIs(t, err, common.ErrInvalidField)

	_, err = runCmd(t, "-d", "-p", "a.edz")
	assert.Error(t, err)

	_, err = runCmd(t, "-p", "a.edz", "b.edz")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	src := writeSource(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.edz")
	custom := filepath.Join(dir, "custom.edz")

	_, err := runCmd(t, src, "-o", good)
	require.NoError(t, err)
	_, err = runCmd(t, src, "-o", custom, "-m", "0x12345678")
	require.NoError(t, err)

	out, err := runCmd(t, "--verify", good)
	require.NoError(t, err)
	assert.Equal(t, good+": ok\n", out)

	out, err = runCmd(t, "--verify", good, custom)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMagicMismatch)
	assert.Equal(t, good+": ok\n"+custom+": bad magic\n", out)

	t.Setenv("EDZ_MAGIC", "0x12345678")
	out, err = runCmd(t, "--verify", custom)
	require.NoError(t, err)
	assert.Equal(t, custom+": ok\n", out)
	assert.True(t, edz.VerifyArchive(custom, 0x12345678))
}

func TestZeroMagic(t *testing.T) {
	src := writeSource(t)
	archivePath := filepath.Join(t.TempDir(), "zero.edz")

	_, err := runCmd(t, src, "-o", archivePath, "-m", "0")
	require.NoError(t, err)

	out, err := runCmd(t, "-p", archivePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "magic=0x00000000 "))

	out, err = runCmd(t, "--verify", "-m", "0", archivePath)
	require.NoError(t, err)
	assert.Equal(t, archivePath+": ok\n", out)

	_, err = runCmd(t, "--verify", archivePath)
	assert.ErrorIs(t, err, common.ErrMagicMismatch)

	t.Setenv("EDZ_MAGIC", "0")
	_, err = runCmd(t, "--verify", archivePath)
	require.NoError(t, err)
}

func TestStoreFetchLocal(t *testing.T) {
	src := writeSource(t)
	archivePath := filepath.Join(t.TempDir(), "bundle.edz")
	storeDir := t.TempDir()

	_, err := runCmd(t, src, "-o", archivePath)
	require.NoError(t, err)

	out, err := runCmd(t, "store", "local", archivePath, "--dir", storeDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(storeDir, "bundle.edz")+"\n", out)

	dest := filepath.Join(t.TempDir(), "fetched.edz")
	out, err = runCmd(t, "fetch", "local", "bundle.edz", "--dir", storeDir, "-o", dest)
	require.NoError(t, err)
	assert.Equal(t, dest+"\n", out)

	want, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = runCmd(t, "fetch", "local", "missing.edz", "--dir", storeDir, "-o", dest)
	assert.ErrorIs(t, err, common.ErrPathNotFound)
}
