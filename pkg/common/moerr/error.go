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
	"bytes"
	"context"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
)

const (
	// 0 - 99 is OK.  They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok            uint16 = 0
	OkExpectedEOF uint16 = 2 // Expected End Of File
	OkMax         uint16 = 99

	// Group 1: Internal errors
	ErrStart            uint16 = 20100
	ErrInternal         uint16 = 20101
	ErrQueryInterrupted uint16 = 20104
	ErrNotSupported     uint16 = 20105

	// Group 2: numeric
	ErrOutOfRange uint16 = 20201
	ErrInvalidArg uint16 = 20203

	// Group 3: invalid input
	ErrBadConfig           uint16 = 20300
	ErrInvalidInput        uint16 = 20301
	ErrUnexpectedEOF       uint16 = 20307
	ErrUnsupportedDataType uint16 = 20315

	// Group 4: unexpected state and io errors
	ErrInvalidState uint16 = 20400
	ErrNoProgress   uint16 = 20410

	// Group 5: rpc timeout
	ErrRPCTimeout    uint16 = 20500
	ErrBackendClosed uint16 = 20502
	ErrStreamClosed  uint16 = 20503

	// Group 7: pipeline execution
	ErrPipelineConstruct uint16 = 20701
	ErrProcessorFailed   uint16 = 20702
	ErrPipelineDeadlock  uint16 = 20703
	ErrPortContract      uint16 = 20704
	ErrExchangeFailed    uint16 = 20705

	// Group End: max value of MOErrorCode
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	// Group 1: Internal errors
	ErrStart:            {"internal error: error code start"},
	ErrInternal:         {"internal error: %s"},
	ErrQueryInterrupted: {"query interrupted"},
	ErrNotSupported:     {"not supported: %s"},

	// Group 2: numeric
	ErrOutOfRange: {"data out of range: data type %s, %s"},
	ErrInvalidArg: {"invalid argument %s, bad value %s"},

	// Group 3: invalid input
	ErrBadConfig:           {"invalid configuration: %s"},
	ErrInvalidInput:        {"invalid input: %s"},
	ErrUnexpectedEOF:       {"unexpected end of file %s"},
	ErrUnsupportedDataType: {"unsupported data type %s"},

	// Group 4: unexpected state
	ErrInvalidState: {"invalid state %s"},
	ErrNoProgress:   {"no progress: %s"},

	// Group 5: rpc
	ErrRPCTimeout:    {"rpc timeout"},
	ErrBackendClosed: {"the backend has been closed"},
	ErrStreamClosed:  {"the stream has been closed"},

	// Group 7: pipeline execution
	ErrPipelineConstruct: {"invalid pipeline: %s"},
	ErrProcessorFailed:   {"processor %s(%d) failed: %s"},
	ErrPipelineDeadlock:  {"pipeline deadlock: %s"},
	ErrPortContract:      {"port protocol violation: %s"},
	ErrExchangeFailed:    {"exchange %s failed: %s"},

	// Group End: max value of MOErrorCode
	ErrEnd: {"internal error: end of errcode code"},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist MOErrorCode: %d", code))
	}
	err := &Error{code: code, message: item.errorMsgOrFormat}
	if len(args) > 0 {
		err.message = fmt.Sprintf(item.errorMsgOrFormat, args...)
	}
	return err
}

type Error struct {
	code    uint16
	message string
	detail  string
	cause   error
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// Unwrap returns the error this one was raised for, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two moerr values by code, so errors.Is(err, moerr.NewQueryInterruptedNoCtx())
// holds for any interrupted error regardless of message.
func (e *Error) Is(target error) bool {
	me, ok := target.(*Error)
	if !ok || me == nil {
		return false
	}
	return me.code == e.code
}

var _ encoding.BinaryMarshaler = new(Error)

// MarshalBinary encodes code, message and detail. The cause chain is
// flattened into the message and does not survive the round trip.
func (e *Error) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], e.code)
	buf.Write(hdr[:])
	writeString(&buf, e.message)
	writeString(&buf, e.detail)
	return buf.Bytes(), nil
}

var _ encoding.BinaryUnmarshaler = new(Error)

func (e *Error) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return NewUnexpectedEOFNoCtx("moerr header")
	}
	e.code = binary.LittleEndian.Uint16(data)
	data = data[2:]
	var err error
	if e.message, data, err = readString(data); err != nil {
		return err
	}
	if e.detail, _, err = readString(data); err != nil {
		return err
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, NewUnexpectedEOFNoCtx("moerr string length")
	}
	n := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < n {
		return "", nil, NewUnexpectedEOFNoCtx("moerr string")
	}
	return string(data[:n]), data[n:], nil
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	var me *Error
	if !errors.As(e, &me) {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

func DowncastError(e error) *Error {
	var err *Error
	if errors.As(e, &err) {
		return err
	}
	return newError(Context(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, debug.Stack()))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	var me *Error
	if errors.As(err, &me) {
		return err
	}

	// Convert a few well known os/go error.
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// if io.EOF reaches here, we believe it is not expected.
		return NewUnexpectedEOF(ctx, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return NewQueryInterrupted(ctx)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRPCTimeout(ctx)
	}

	e := newError(ctx, ErrInternal, fmt.Sprintf("convert go error to mo error %v", err))
	e.cause = err
	return e
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

var errOkExpectedEOF = Error{code: OkExpectedEOF, message: "ExpectedEOF"}

func GetOkExpectedEOF() *Error {
	return &errOkExpectedEOF
}

// Context returns the context used by the NoCtx constructors.
func Context() context.Context {
	return context.Background()
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotSupported, xmsg)
}

func NewQueryInterrupted(ctx context.Context) *Error {
	return newError(ctx, ErrQueryInterrupted)
}

func NewOutOfRange(ctx context.Context, typ string, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrOutOfRange, typ, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewUnsupportedDataType(ctx context.Context, typ string) *Error {
	return newError(ctx, ErrUnsupportedDataType, typ)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewNoProgress(ctx context.Context, f string) *Error {
	return newError(ctx, ErrNoProgress, f)
}

func NewRPCTimeout(ctx context.Context) *Error {
	return newError(ctx, ErrRPCTimeout)
}

func NewBackendClosed(ctx context.Context) *Error {
	return newError(ctx, ErrBackendClosed)
}

func NewStreamClosed(ctx context.Context) *Error {
	return newError(ctx, ErrStreamClosed)
}

func NewPipelineConstruct(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrPipelineConstruct, xmsg)
}

// NewProcessorFailed reports that processor name with the given id failed
// with cause. The cause stays reachable through errors.Is and errors.As.
func NewProcessorFailed(ctx context.Context, name string, id int, cause error) *Error {
	msg := "<nil>"
	if cause != nil {
		msg = cause.Error()
	}
	err := newError(ctx, ErrProcessorFailed, name, id, msg)
	err.cause = cause
	return err
}

func NewPipelineDeadlock(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrPipelineDeadlock, xmsg)
}

func NewPortContract(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrPortContract, xmsg)
}

func NewExchangeFailed(ctx context.Context, exchange string, cause error) *Error {
	msg := "<nil>"
	if cause != nil {
		msg = cause.Error()
	}
	err := newError(ctx, ErrExchangeFailed, exchange, msg)
	err.cause = cause
	return err
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(Context(), msg, args...)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewUnexpectedEOFNoCtx(f string) *Error {
	return NewUnexpectedEOF(Context(), f)
}

func NewQueryInterruptedNoCtx() *Error {
	return NewQueryInterrupted(Context())
}

func NewBackendClosedNoCtx() *Error {
	return NewBackendClosed(Context())
}

func NewPortContractNoCtx(msg string, args ...any) *Error {
	return NewPortContract(Context(), msg, args...)
}

func NewPipelineConstructNoCtx(msg string, args ...any) *Error {
	return NewPipelineConstruct(Context(), msg, args...)
}

func NewBadConfigNoCtx(msg string, args ...any) *Error {
	return NewBadConfig(Context(), msg, args...)
}
