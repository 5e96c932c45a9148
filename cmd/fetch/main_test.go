package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RequiresTermAndEmail(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--term", "brain"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--term", "brain", "--email", "a@b.com", "--max", "25", "--out", "/tmp/x", "--upload"}))

	limit, err := cmd.Flags().GetInt("max")
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	upload, err := cmd.Flags().GetBool("upload")
	require.NoError(t, err)
	assert.True(t, upload)

	out, _ := cmd.Flags().GetString("out")
	assert.Equal(t, "/tmp/x", out)
}
