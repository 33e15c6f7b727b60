package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeWith(t *testing.T, s string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = io.WriteString(w, s)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPromptPassword_Piped(t *testing.T) {
	pw, err := promptPassword(pipeWith(t, "s3cret\r\nignored\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = promptPassword(pipeWith(t, "no-newline"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = promptPassword(pipeWith(t, "\n"), io.Discard)
	assert.Error(t, err)
}
