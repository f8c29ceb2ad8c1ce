package etl

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_UnwrapsToSentinelAndCause(t *testing.T) {
	err := newError(KindStorage, "fetch users", io.ErrUnexpectedEOF)

	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotErrorIs(t, err, ErrWarehouse)
	require.Equal(t, "StorageError: fetch users: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("task: %w", err)
	require.Equal(t, KindStorage, KindOf(wrapped))
	var e *Error
	require.True(t, errors.As(wrapped, &e))
	require.Equal(t, "fetch users", e.Op)
}

func TestRetryable(t *testing.T) {
	cases := map[ErrorKind]bool{
		KindNetwork:       true,
		KindHTTPStatus:    true,
		KindStorage:       true,
		KindWarehouse:     true,
		KindDecode:        false,
		KindSchema:        false,
		KindConfiguration: false,
	}
	for kind, want := range cases {
		require.Equal(t, want, Retryable(errorf(kind, "op", "failed")), kind)
	}
	require.True(t, Retryable(errors.New("plain")))
	require.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
