package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesToComponentFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, Init("testcomp"))
	defer Close()

	ctx := WithRepository(context.Background(), "/repo")
	Info(ctx, "hello", "k", "v")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, parseLevel("debug"), parseLevel("DEBUG"))
	require.NotEqual(t, parseLevel("debug"), parseLevel("error"))
	require.Equal(t, parseLevel(""), parseLevel("bogus"))
}
