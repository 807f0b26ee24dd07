package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"goprep/domain/preprocess"
	"goprep/internal/preprocessing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessCommandLocal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(in, []byte("x,color,y\n1,red,0\n,blue,1\n3,red,1\n"), 0o644))
	outDir := filepath.Join(dir, "out")

	cmd := newPreprocessCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{in, "--out", outDir, "--encoding", "label", "--remote", ""})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "missing=median")
	assert.Contains(t, out.String(), "Progress: 100%")
	written, err := filepath.Glob(filepath.Join(outDir, "train_*_preprocessed.csv"))
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Contains(t, out.String(), "train.csv -> "+written[0])
}

func TestPreprocessCommandRejectsMissingTarget(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(in, []byte("c,y\nred,1\n"), 0o644))

	cmd := newPreprocessCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{in, "--out", dir, "--encoding", "target", "--suggestions=false", "--remote", ""})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please select a target column")
}

func TestApplyFlags(t *testing.T) {
	state := preprocessing.NewState(preprocessing.ApplyOnce)
	err := applyFlags(state, preprocessFlags{
		missing:    "drop",
		noScaling:  true,
		encodeCols: []string{"city", "city"},
		target:     "label",
	})
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, preprocess.MissingDrop, snap.Config.MissingStrategy)
	assert.False(t, snap.Config.ScalingEnabled)
	assert.True(t, snap.Modes.Encoding)
	assert.Equal(t, []string{"city"}, snap.Config.EncodingColumns)
	assert.Equal(t, "label", snap.Config.TargetColumn)

	assert.Error(t, applyFlags(state, preprocessFlags{encoding: "hash"}))
}
