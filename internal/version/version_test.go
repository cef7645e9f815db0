package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoDefaults(t *testing.T) {
	v, c, d := Info()
	require.NotEmpty(t, v)
	require.NotEmpty(t, c)
	require.NotEmpty(t, d)
	require.Equal(t, v, GetVersion())
}

func TestString(t *testing.T) {
	s := String()
	require.Contains(t, s, "storefront")
	require.Contains(t, s, "version="+GetVersion())
	require.Contains(t, s, "commit=")
	require.Contains(t, s, "date=")
}
