package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdoutNotifierPrintsChunks(t *testing.T) {
	var buf bytes.Buffer
	n := stdoutNotifier{w: &buf}
	require.NoError(t, n.Send(context.Background(), 0, "первый"))
	require.NoError(t, n.Send(context.Background(), 0, "второй"))
	require.Equal(t, "первый\n\nвторой\n\n", buf.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["scan"])
	require.True(t, names["tokens"])
	require.Error(t, scanCmd.Args(scanCmd, nil))
}
