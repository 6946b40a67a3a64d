package setups

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialsFile(t *testing.T) {
	t.Setenv(DevCredentialsPathEnv, "")
	_, ok := CredentialsFile()
	require.False(t, ok)

	t.Setenv(DevCredentialsPathEnv, "/secrets/firebase.json")
	path, ok := CredentialsFile()
	require.True(t, ok)
	require.Equal(t, "/secrets/firebase.json", path)
}
