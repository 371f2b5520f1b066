package hotrun

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTakeFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry.js")
	writeFile(t, path, "hello")

	fp, err := TakeFingerprint(path)
	require.NoError(t, err)
	require.False(t, fp.IsZero())
	require.Equal(t, int64(5), fp.Size)

	again, err := TakeFingerprint(path)
	require.NoError(t, err)
	require.True(t, fp.Equal(again))
	require.Contains(t, fp.String(), "size=5")
}

func TestFingerprintSameContentNewMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.js")
	writeFile(t, path, "same")

	before, err := TakeFingerprint(path)
	require.NoError(t, err)

	later := before.ModTime.Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	after, err := TakeFingerprint(path)
	require.NoError(t, err)
	require.False(t, before.Equal(after), "same bytes written later is a new version")
}

func TestFingerprintReplacedByRename(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("inode numbers are only tracked on unix")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "entry.js")
	writeFile(t, path, "same")
	before, err := TakeFingerprint(path)
	require.NoError(t, err)

	tmp := filepath.Join(dir, "entry.js.tmpfile")
	writeFile(t, tmp, "same")
	require.NoError(t, os.Chtimes(tmp, before.ModTime, before.ModTime))
	require.NoError(t, os.Rename(tmp, path))

	after, err := TakeFingerprint(path)
	require.NoError(t, err)
	require.Equal(t, before.Size, after.Size)
	require.True(t, before.ModTime.Equal(after.ModTime))
	require.False(t, before.Equal(after))
}

func TestTakeFingerprintErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := TakeFingerprint(filepath.Join(dir, "missing"))
	require.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = TakeFingerprint(dir)
	var oe *OpError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, OpStat, oe.Op)
}
