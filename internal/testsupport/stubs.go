package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// findOutput locates the output argument: the value after -o, otherwise the
// last argument.
const findOutput = `out=""
prev=""
last=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
  last="$a"
done
[ -z "$out" ] && out="$last"
`

// Encoder stub behaviours.
const (
	// EncoderCopy copies stdin to the output file and exits 0.
	EncoderCopy = findOutput + `cat > "$out"
`
	// EncoderFail writes some output, complains on stderr and exits 3.
	EncoderFail = findOutput + `cat > "$out"
echo "stub encoder: simulated failure" >&2
exit 3
`
	// EncoderEmpty drains stdin and leaves an empty output file.
	EncoderEmpty = findOutput + `cat > /dev/null
: > "$out"
`
	// EncoderHang ignores stdin and never exits on its own.
	EncoderHang = `exec sleep 30
`
	// EncoderForking starts its output, leaves a background child holding
	// its pipes and then hangs.
	EncoderForking = findOutput + `: > "$out"
sleep 30 &
sleep 30
`
)

// InstallEncoderStub writes an executable named name with the given shell
// body and prepends its directory to PATH for the duration of the test.
func InstallEncoderStub(t *testing.T, name, body string) string {
	t.Helper()
	binDir := t.TempDir()
	path := writeStub(t, binDir, name, body)
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return path
}

// WriteScript writes an executable shell script at dir/name and returns its
// path without touching PATH.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	return writeStub(t, dir, name, body)
}

func writeStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
