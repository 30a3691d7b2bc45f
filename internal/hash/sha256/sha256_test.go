package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("<html>menu</html>"))
	require.NoError(t, err)
	second, err := h.Hash([]byte("<html>menu</html>"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestHashDiffersForDifferentInput(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("price $10"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("price $9"))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestDedupeKeySeparatesTypeAndDetails(t *testing.T) {
	t.Parallel()

	// Same concatenated bytes must not collide across the type/details split.
	a := DedupeKey("price_change", []byte(`{"item":"Burger"}`))
	b := DedupeKey("price_change", []byte(`{"item":"Fries"}`))
	c := DedupeKey("menu_change", []byte(`{"item":"Burger"}`))

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, a, DedupeKey("price_change", []byte(`{"item":"Burger"}`)))
}
