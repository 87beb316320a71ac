// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMoErrCode(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		code     uint16
		expected bool
	}{
		{
			name:     "nil error is ok",
			err:      nil,
			code:     Ok,
			expected: true,
		},
		{
			name:     "nil error is not internal",
			err:      nil,
			code:     ErrInternal,
			expected: false,
		},
		{
			name:     "plain go error",
			err:      errors.New("boom"),
			code:     ErrInternal,
			expected: false,
		},
		{
			name:     "interrupted",
			err:      NewQueryInterrupted(ctx),
			code:     ErrQueryInterrupted,
			expected: true,
		},
		{
			name:     "processor failed",
			err:      NewProcessorFailed(ctx, "restrict", 3, errors.New("bad row")),
			code:     ErrProcessorFailed,
			expected: true,
		},
		{
			name:     "deadlock is not no progress",
			err:      NewPipelineDeadlock(ctx, "stuck"),
			code:     ErrNoProgress,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMoErrCode(tt.err, tt.code))
		})
	}
}

func TestProcessorFailedUnwrap(t *testing.T) {
	cause := NewInvalidInput(context.Background(), "lane 2")
	err := NewProcessorFailed(context.Background(), "stub", 7, cause)

	require.Equal(t, "processor stub(7) failed: invalid input: lane 2", err.Error())
	require.True(t, errors.Is(err, cause))

	var me *Error
	require.True(t, errors.As(err.Unwrap(), &me))
	require.Equal(t, ErrInvalidInput, me.ErrorCode())

	sentinel := errors.New("sentinel")
	require.ErrorIs(t, NewProcessorFailed(context.Background(), "x", 1, sentinel), sentinel)
}

func TestErrorIsByCode(t *testing.T) {
	a := NewQueryInterrupted(context.Background())
	b := NewQueryInterruptedNoCtx()
	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, NewRPCTimeout(context.Background())))
}

func TestConvertGoError(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, ConvertGoError(ctx, nil))
	require.True(t, IsMoErrCode(ConvertGoError(ctx, io.EOF), ErrUnexpectedEOF))
	require.True(t, IsMoErrCode(ConvertGoError(ctx, context.Canceled), ErrQueryInterrupted))
	require.True(t, IsMoErrCode(ConvertGoError(ctx, context.DeadlineExceeded), ErrRPCTimeout))

	orig := NewBackendClosed(ctx)
	require.Same(t, orig, ConvertGoError(ctx, orig))

	plain := errors.New("plain")
	converted := ConvertGoError(ctx, plain)
	require.True(t, IsMoErrCode(converted, ErrInternal))
	require.ErrorIs(t, converted, plain)
}

func TestConvertPanicError(t *testing.T) {
	ctx := context.Background()
	err := NewInvalidStateNoCtx("x")
	require.Same(t, err, ConvertPanicError(ctx, err))

	pe := ConvertPanicError(ctx, "index out of range")
	require.Equal(t, ErrInternal, pe.ErrorCode())
	require.Contains(t, pe.Error(), "index out of range")
}

func TestMarshalBinary(t *testing.T) {
	err := NewExchangeFailed(context.Background(), "fragment 9", errors.New("peer gone"))
	data, e := err.MarshalBinary()
	require.NoError(t, e)

	var got Error
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, err.ErrorCode(), got.ErrorCode())
	require.Equal(t, err.Error(), got.Error())

	require.Error(t, got.UnmarshalBinary(data[:1]))
	require.Error(t, got.UnmarshalBinary(data[:5]))
}

func TestSucceeded(t *testing.T) {
	require.True(t, GetOkExpectedEOF().Succeeded())
	require.False(t, NewNoProgress(context.Background(), "spin").Succeeded())
}
