package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ts := time.Date(2026, 2, 14, 10, 30, 0, 123456789, time.UTC)
		encoded := EncodeCursor("esc-42", ts)
		require.NotEmpty(t, encoded)

		cursor, err := DecodeCursor(encoded)
		require.NoError(t, err)
		assert.Equal(t, "esc-42", cursor.LastID)
		assert.True(t, cursor.Timestamp.Equal(ts))
	})

	t.Run("empty id encodes to empty string", func(t *testing.T) {
		assert.Empty(t, EncodeCursor("", time.Now()))
	})

	t.Run("empty cursor decodes to nil", func(t *testing.T) {
		cursor, err := DecodeCursor("")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	t.Run("non-UTC timestamp normalized", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*3600)
		ts := time.Date(2026, 2, 14, 12, 30, 0, 0, loc)

		cursor, err := DecodeCursor(EncodeCursor("esc-1", ts))
		require.NoError(t, err)
		assert.True(t, cursor.Timestamp.Equal(ts))
	})
}

func TestDecodeCursor_Invalid(t *testing.T) {
	t.Run("not base64", func(t *testing.T) {
		_, err := DecodeCursor("!!!not-base64!!!")
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("missing separator", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("no-separator"))
		_, err := DecodeCursor(encoded)
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("esc-1|yesterday"))
		_, err := DecodeCursor(encoded)
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})
}
