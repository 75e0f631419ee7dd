package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const graphDoc = `{"nodes":[{"id":"1","type":"compute","position":{"x":0,"y":0},
"data":{"specName":"collect_batch_results","inputs":[{"id":"in0","name":"result","type":"*","defaultValue":3}]}}],"edges":[]}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateAndCompile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(good, []byte(graphDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte(`{"nodes":[`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", "--catalog", "", good)
	if err != nil || !strings.Contains(out, "good.json: ok (1 nodes, 0 edges") {
		t.Errorf("validate = %q, %v", out, err)
	}
	if _, err := run(t, "validate", "--catalog", "", bad); err == nil {
		t.Error("expected validate failure")
	}

	out, err = run(t, "compile", "--catalog", "", good)
	if err != nil {
		t.Fatal(err)
	}
	if out != "batch_outputs.append(3)\n" {
		t.Errorf("compile = %q", out)
	}
}
