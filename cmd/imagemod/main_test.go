package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: []string{"imagemod"}},
		{name: "too many inputs", args: []string{"imagemod", "a.png", "b.png"}},
		{name: "unknown flag", args: []string{"imagemod", "-bogus", "a.png"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 2 {
				t.Errorf("run(%v) = %d, want 2", tc.args, code)
			}
		})
	}
}

func TestRunBadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"imagemod", "-config", filepath.Join(t.TempDir(), "absent.yaml"), "a.png"}
	if code := run(args, &stdout, &stderr); code != 1 {
		t.Errorf("run = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "config error") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "pic.png")
	writePNG(t, input)

	var stdout, stderr bytes.Buffer
	args := []string{
		"imagemod",
		"-no-apis",
		"-allowlist", filepath.Join(dir, "allow.txt"),
		"-blocklist", filepath.Join(dir, "block.txt"),
		"-text-blocklist", filepath.Join(dir, "text.txt"),
		input,
	}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("run = %d, want 0\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "FINAL: OK") {
		t.Errorf("stdout = %q, want FINAL: OK", stdout.String())
	}
	if !strings.Contains(stdout.String(), input) {
		t.Errorf("stdout should name the input, got %q", stdout.String())
	}
}

func TestRunUndecodableInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(input, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	args := []string{
		"imagemod", "-no-apis",
		"-allowlist", filepath.Join(dir, "allow.txt"),
		"-blocklist", filepath.Join(dir, "block.txt"),
		"-text-blocklist", filepath.Join(dir, "text.txt"),
		input,
	}
	if code := run(args, &stdout, &stderr); code != 2 {
		t.Fatalf("run = %d, want 2 for a REVIEW verdict", code)
	}
	if !strings.Contains(stdout.String(), "FINAL: REVIEW") {
		t.Errorf("stdout = %q, want FINAL: REVIEW", stdout.String())
	}
}

func TestRunDirectoryAndJSONReport(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.png"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	jsonPath := filepath.Join(t.TempDir(), "report.json")
	var stdout, stderr bytes.Buffer
	args := []string{
		"imagemod", "-no-apis",
		"-allowlist", filepath.Join(dir, "allow.txt"),
		"-blocklist", filepath.Join(dir, "block.txt"),
		"-text-blocklist", filepath.Join(dir, "text.txt"),
		"-json", jsonPath,
		dir,
	}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("run = %d, want 0\nstderr: %s", code, stderr.String())
	}

	// Directory scans process files in sorted order.
	out := stdout.String()
	if ai, bi := strings.Index(out, "a.png"), strings.Index(out, "b.png"); ai < 0 || bi < 0 || ai > bi {
		t.Errorf("inputs out of order in output:\n%s", out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Errorf("non-image file scanned:\n%s", out)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var reports []struct {
		Name    string `json:"name"`
		Verdict struct {
			Label string `json:"label"`
		} `json:"verdict"`
	}
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("parse json report: %v\n%s", err, data)
	}
	if len(reports) != 2 {
		t.Fatalf("json reports = %d, want 2", len(reports))
	}
	for _, rep := range reports {
		if rep.Verdict.Label != "OK" {
			t.Errorf("report %s label = %s, want OK", rep.Name, rep.Verdict.Label)
		}
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "top.png"))
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(sub, "nested.png"))

	flat, err := collectInputs(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 1 || !strings.HasSuffix(flat[0], "top.png") {
		t.Errorf("flat = %v, want only top.png", flat)
	}

	deep, err := collectInputs(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 2 {
		t.Errorf("deep = %v, want 2 files", deep)
	}

	// URLs pass through untouched.
	urls, err := collectInputs("https://example.com/pic.png", false)
	if err != nil || len(urls) != 1 || urls[0] != "https://example.com/pic.png" {
		t.Errorf("collectInputs(url) = %v, %v", urls, err)
	}
}

func TestFormatScores(t *testing.T) {
	got := formatScores(map[string]float64{"violence": 0.5, "nudity": 0.25})
	if got != "nudity=0.25, violence=0.50" {
		t.Errorf("formatScores = %q", got)
	}
}
