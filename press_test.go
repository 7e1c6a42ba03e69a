package press

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCompressDecompressFile(t *testing.T) {
	payload := testPayload(100 << 10)
	for _, f := range detectableFormats {
		t.Run(string(f), func(t *testing.T) {
			dir := t.TempDir()
			input := filepath.Join(dir, "data.bin")
			writeFile(t, input, payload)

			stats, err := Compress(string(f), input, "", nil)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			archive := input + Extension(f)
			if !fileExists(archive) {
				t.Fatalf("archive %q not created", archive)
			}
			if fileExists(input) {
				t.Fatal("input not deleted after derived-path compress")
			}
			if stats.BytesRead != int64(len(payload)) {
				t.Fatalf("BytesRead = %d, want %d", stats.BytesRead, len(payload))
			}
			if stats.Format != f {
				t.Fatalf("Format = %q, want %q", stats.Format, f)
			}

			stats, err = Decompress(archive, "", nil)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if stats.Format != f {
				t.Fatalf("detected %q, want %q", stats.Format, f)
			}
			if fileExists(archive) {
				t.Fatal("archive not deleted after derived-path decompress")
			}
			if got := readFile(t, input); !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
			}
		})
	}
}

func TestDecompressDerivedPathLZ4(t *testing.T) {
	// Both LZ4 containers share the .lz4 extension; derivation must
	// follow the detected format, not the name.
	payload := testPayload(8 << 10)
	dir := t.TempDir()
	archive := filepath.Join(dir, "boot.img.lz4")
	writeFile(t, archive, encodeAll(t, FormatLZ4Legacy, payload, 0))

	stats, err := Decompress(archive, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Format != FormatLZ4Legacy {
		t.Fatalf("detected %q", stats.Format)
	}
	if got := readFile(t, filepath.Join(dir, "boot.img")); !bytes.Equal(got, payload) {
		t.Fatal("decoded content mismatch")
	}
}

func TestDecompressExtensionMismatch(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.bin")
	writeFile(t, input, encodeAll(t, FormatGzip, testPayload(1024), 0))

	_, err := Decompress(input, "", nil)
	if !errors.Is(err, ErrMismatchedExt) {
		t.Fatalf("err = %v, want extension mismatch", err)
	}
	if !fileExists(input) {
		t.Fatal("input deleted after failed decompress")
	}
}

func TestDecompressUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.gz")
	writeFile(t, input, []byte("definitely not gzip"))

	_, err := Decompress(input, "", nil)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want unknown format", err)
	}
	if !fileExists(input) {
		t.Fatal("input deleted after failed decompress")
	}
}

func TestDecompressEmptyInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.gz")
	writeFile(t, input, nil)

	if _, err := Decompress(input, "", nil); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want unknown format", err)
	}
}

func TestCompressUnknownMethod(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.bin")
	writeFile(t, input, []byte("data"))

	if _, err := Compress("arj", input, "", nil); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("err = %v, want unknown method", err)
	}
	if !fileExists(input) {
		t.Fatal("input deleted after failed compress")
	}
}

func TestExplicitOutputKeepsInput(t *testing.T) {
	payload := testPayload(4096)
	dir := t.TempDir()
	input := filepath.Join(dir, "data.bin")
	output := filepath.Join(dir, "elsewhere.gz")
	writeFile(t, input, payload)

	if _, err := Compress("gzip", input, output, nil); err != nil {
		t.Fatal(err)
	}
	if !fileExists(input) {
		t.Fatal("input deleted despite explicit output path")
	}

	restored := filepath.Join(dir, "restored.bin")
	if _, err := Decompress(output, restored, nil); err != nil {
		t.Fatal(err)
	}
	if !fileExists(output) {
		t.Fatal("archive deleted despite explicit output path")
	}
	if got := readFile(t, restored); !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestKeepOption(t *testing.T) {
	payload := testPayload(4096)
	dir := t.TempDir()
	input := filepath.Join(dir, "data.bin")
	writeFile(t, input, payload)

	opts := DefaultOptions()
	opts.Keep = true
	if _, err := Compress("zstd", input, "", opts); err != nil {
		t.Fatal(err)
	}
	if !fileExists(input) {
		t.Fatal("input deleted despite Keep")
	}
	if !fileExists(input + ".zst") {
		t.Fatal("archive missing")
	}
}

func TestDecompressCorruptInputLeavesInput(t *testing.T) {
	payload := testPayload(64 << 10)
	dir := t.TempDir()
	archive := filepath.Join(dir, "data.gz")
	compressed := encodeAll(t, FormatGzip, payload, 0)
	writeFile(t, archive, compressed[:len(compressed)/2])

	if _, err := Decompress(archive, "", nil); err == nil {
		t.Fatal("truncated archive decompressed without error")
	}
	if !fileExists(archive) {
		t.Fatal("input deleted after failed decompress")
	}
}

func TestMethodNamesRoundTripThroughRegistry(t *testing.T) {
	for _, f := range allFormats {
		got, ok := FormatByName(string(f))
		if !ok || got != f {
			t.Errorf("FormatByName(%q) = %q, %v", f, got, ok)
		}
	}
}
