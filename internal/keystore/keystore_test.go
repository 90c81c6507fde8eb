package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	s := New()

	require.NoError(t, s.SaveToken("user@example.com", "tok123"))

	token, err := s.Token("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)

	require.NoError(t, s.DeleteToken("user@example.com"))

	_, err = s.Token("user@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAbsentToken(t *testing.T) {
	keyring.MockInit()
	s := New()
	assert.NoError(t, s.DeleteToken("nobody@example.com"))
}
