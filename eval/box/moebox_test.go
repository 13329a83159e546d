package box

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fushar/regrader/eval"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRunFlags(t *testing.T) {
	b := New("/opt/box", []string{"-f", "-a3"}, afero.NewMemMapFs(), nil)

	tests := []struct {
		name string
		conf eval.RunConfig
		want []string
	}{
		{
			name: "unrestricted",
			conf: eval.RunConfig{WallTimeLimit: 1, InputPath: "/t/1.in", OutputPath: "/j/1.out", StderrPath: "/j/error", MetaPath: "/j/result"},
			want: []string{"-w1", "-i/t/1.in", "-o/j/1.out", "-r/j/error", "-M/j/result", "--"},
		},
		{
			name: "memory and syscalls",
			conf: eval.RunConfig{WallTimeLimit: 0.5, MemoryLimit: 64 * 1024, LimitSyscall: true, InputPath: "/t/1.in", OutputPath: "/j/1.out", StderrPath: "/j/error", MetaPath: "/j/result"},
			want: []string{"-m65536", "-f", "-a3", "-w0.5", "-i/t/1.in", "-o/j/1.out", "-r/j/error", "-M/j/result", "--"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, b.buildRunFlags(&test.conf))
		})
	}
}

func TestParseMetaFile(t *testing.T) {
	meta := ParseMetaFile(strings.NewReader("time:0.912\ntime-wall:1.234\nmem:2048\nstatus:SG\nexitsig:11\nmessage:Caught fatal signal 11\n"))
	require.NotNil(t, meta)
	assert.Equal(t, "SG", meta.Status)
	assert.Equal(t, 11, meta.ExitSignal)
	assert.Equal(t, "Caught fatal signal 11", meta.Message)
	assert.Equal(t, 1234, meta.TimeMillis())
	assert.Equal(t, 2, meta.MemoryKB())
	assert.Equal(t, "0.912", meta.Fields["time"])
	assert.Len(t, meta.Fields, 6)

	clean := ParseMetaFile(strings.NewReader("time-wall:0.010\r\nmem:1000\r\n\n"))
	assert.Empty(t, clean.Status)
	assert.Equal(t, 10, clean.TimeMillis())
	assert.Equal(t, 1, clean.MemoryKB())

	assert.Nil(t, ParseMetaFile(nil))
}

// fakeBox writes a box replacement that records its arguments and emits meta.
func fakeBox(t *testing.T, meta string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsFile + "\n" +
		"for a in \"$@\"; do case \"$a\" in -M*) meta=\"${a#-M}\";; esac; done\n" +
		"printf '" + meta + "' > \"$meta\"\n" +
		"exit 1\n"
	path := filepath.Join(dir, "box")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path, argsFile
}

func TestRunCommand(t *testing.T) {
	boxPath, argsFile := fakeBox(t, `status:TO\ntime-wall:2.001\nmem:4096\n`)
	dir := t.TempDir()
	b := New(boxPath, []string{"-f", "-a3"}, afero.NewOsFs(), nil)

	stats, err := b.RunCommand(context.Background(), []string{"/srv/sol", "--flag"}, &eval.RunConfig{
		WallTimeLimit: 2,
		MemoryLimit:   1024,
		InputPath:     "/t/in",
		OutputPath:    filepath.Join(dir, "out"),
		StderrPath:    filepath.Join(dir, "error"),
		MetaPath:      filepath.Join(dir, "result"),
	})
	require.NoError(t, err)
	assert.Equal(t, "TO", stats.Status)
	assert.Equal(t, 2001, stats.TimeMillis())
	assert.Equal(t, 4, stats.MemoryKB())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	assert.Equal(t, []string{"-m1024", "-w2", "-i/t/in", "-o" + filepath.Join(dir, "out"), "-r" + filepath.Join(dir, "error"), "-M" + filepath.Join(dir, "result"), "--", "/srv/sol", "--flag"}, lines)
}

func TestRunCommandMissingBox(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "nope"), nil, afero.NewOsFs(), nil)
	_, err := b.RunCommand(context.Background(), []string{"/bin/true"}, &eval.RunConfig{MetaPath: filepath.Join(t.TempDir(), "result")})
	require.Error(t, err)
}

func TestHostRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	out, code, err := HostRunner{}.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, string(out), "out")
	assert.Contains(t, string(out), "err")

	out, code, err = HostRunner{}.Run(context.Background(), "", []string{"surely-not-a-compiler-xyz"})
	require.NoError(t, err)
	assert.Equal(t, 127, code)
	assert.Contains(t, string(out), "command not found")
}
