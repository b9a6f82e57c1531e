package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/model"
)

const dataDir = "../data"

const testIncident = `{
  "dump_file": "crash.dmp",
  "kind": "crash",
  "exception_code": 3221225477,
  "exception_addr": 268439552,
  "game_version": "1.6.1170",
  "modules": [
    {"filename": "SkyrimSE.exe", "base": 5368709120, "size": 67108864},
    {"filename": "BadMod.dll", "path": "C:/Games/MO2/mods/Bad Mod/SKSE/Plugins/BadMod.dll", "base": 268435456, "size": 1048576}
  ],
  "frames": [{"address": 268439552}, {"address": 268439600}, {"address": 5368710000}]
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3", "abc", "2026-01-01")
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "xtriage 1.2.3 (abc, 2026-01-01)")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want model.FilterVerdict
	}{
		{"benign C++ exception on clean exit", []string{"--exception", "0xE06D7363", "--exit-code", "0"}, model.DeleteBenign},
		{"access violation", []string{"--exception", "0xC0000005"}, model.KeepDump},
		{"non-zero exit in menu", []string{"--exception", "0xE06D7363", "--exit-code", "1", "--state-flags", "4"}, model.KeepDump},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"classify", "--format", "json"}, tt.args...)...)
			require.NoError(t, err)
			var res classifyResult
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.want, res.Verdict)
		})
	}

	_, err := run(t, "classify", "--exception", "zz")
	assert.Error(t, err)
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	inc := writeFile(t, dir, "crash.incident.json", testIncident)
	hist := filepath.Join(dir, "history.db")

	out, err := run(t, "analyze", inc, "--data-dir", dataDir, "--history", hist, "--format", "json")
	require.NoError(t, err)
	var first engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.NotNil(t, first.Diagnosis)
	assert.Equal(t, "BadMod.dll", first.Diagnosis.Fault.Module)
	assert.NotEmpty(t, first.Diagnosis.BucketKey)
	assert.Nil(t, first.Diagnosis.HistoryCorrelation)

	out, err = run(t, "analyze", inc, "--data-dir", dataDir, "--history", hist, "--format", "json")
	require.NoError(t, err)
	var second engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	require.NotNil(t, second.Diagnosis.HistoryCorrelation)
	assert.Equal(t, 2, second.Diagnosis.HistoryCorrelation.Count)

	out, err = run(t, "history", "--history", hist, "--bucket", second.Diagnosis.BucketKey, "--format", "json")
	require.NoError(t, err)
	var rep historyReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.NotNil(t, rep.Bucket)
	assert.Equal(t, 2, rep.Bucket.Count)

	out, err = run(t, "analyze", inc, "--data-dir", dataDir, "--no-history", "--lang", "ko")
	require.NoError(t, err)
	assert.Contains(t, out, "BadMod.dll+0x1000")
	assert.Contains(t, out, "진단")
}

func TestAnalyzeErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "analyze", filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeFile(t, dir, "bad.json", "{")
	_, err = run(t, "analyze", bad, "--no-history")
	assert.Error(t, err)

	inc := writeFile(t, dir, "ok.json", testIncident)
	_, err = run(t, "analyze", inc, "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestKBValidate(t *testing.T) {
	out, err := run(t, "kb", "validate", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "crash_signatures.json")
	assert.Contains(t, out, "skyrimse_functions.json")
	assert.NotContains(t, out, "mismatch")

	dir := t.TempDir()
	writeFile(t, dir, "crash_signatures.json", `{"version": 2, "signatures": []}`)
	out, err = run(t, "kb", "validate", dir)
	assert.ErrorIs(t, err, errInvalidKB)
	assert.Contains(t, out, "missing")

	_, err = run(t, "kb", "validate", t.TempDir())
	assert.NoError(t, err, "an empty directory only has missing files")
}

func TestMonitorAnalyzesKeptDump(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "crash.dmp")
	require.NoError(t, os.WriteFile(dump, []byte("MDMP"), 0o644))
	writeFile(t, dir, "crash.dmp"+incidentSuffix, testIncident)

	recs := []model.TelemetryRecord{
		{Kind: model.TelemetryHeartbeat, Heartbeat: &model.HeartbeatSample{NowTicks: 100, HeartbeatTicks: 100, TickFrequency: 100, IsForeground: true}},
		{Kind: model.TelemetryCrash, Crash: &model.RawCrashSignal{ExceptionCode: engine.StatusAccessViolation, DumpPath: dump}},
		{Kind: model.TelemetryExit, Exit: &model.ProcessExit{ExitCode: 1}},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}
	telemetry := writeFile(t, dir, "telemetry.jsonl", buf.String())
	recorded := filepath.Join(dir, "copy.jsonl")
	cfg := writeFile(t, dir, "config.yaml", "monitor:\n  event_log: "+filepath.ToSlash(filepath.Join(dir, "events.jsonl"))+"\n")

	_, err := run(t, "monitor", telemetry,
		"--config", cfg,
		"--data-dir", dataDir,
		"--history", filepath.Join(dir, "history.db"),
		"--interval", "0",
		"--record", recorded)
	require.NoError(t, err)

	data, err := os.ReadFile(dump + diagnosisSuffix)
	require.NoError(t, err)
	var res engine.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, dump, res.Diagnosis.DumpFile)

	events, err := engine.ReadEventLog(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventAnalysis, events[len(events)-1].Kind)

	copied, err := os.ReadFile(recorded)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(copied))
}
