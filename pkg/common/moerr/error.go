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
	"fmt"
)

const (
	// 0 - 99: system errors
	Ok uint16 = iota
	ErrInfo
	ErrInternal
	ErrOOM
	ErrQueryInterrupted
	ErrNYI

	// 100 - 199: invalid input or argument
	ErrInvalidInput uint16 = 100 + iota
	ErrInvalidArg

	// 200 - 299: executor errors
	ErrExprEval uint16 = 200 + iota
)

type Error struct {
	code    uint16
	message string
	cause   error
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(_ context.Context, code uint16, msg string, args ...any) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{code: code, message: msg}
}

// IsMoErrCode reports whether err is a moerr with the given code.
func IsMoErrCode(err error, code uint16) bool {
	if err == nil {
		return code == Ok
	}
	me, ok := err.(*Error)
	if !ok {
		return false
	}
	return me.code == code
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInternal, "internal error: "+msg, args...)
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(context.Background(), msg, args...)
}

func NewOOM(ctx context.Context) *Error {
	return newError(ctx, ErrOOM, "out of memory")
}

func NewOOMNoCtx() *Error {
	return NewOOM(context.Background())
}

func NewQueryInterrupted(ctx context.Context) *Error {
	return newError(ctx, ErrQueryInterrupted, "query interrupted")
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNYI, msg+" not yet implemented", args...)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidInput, "invalid input: "+msg, args...)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, "invalid argument %s, bad value %v", arg, val)
}

func NewInvalidArgNoCtx(arg string, val any) *Error {
	return NewInvalidArg(context.Background(), arg, val)
}

// NewExprEval wraps an error coming out of expression evaluation,
// keeping the cause reachable through Unwrap.
func NewExprEval(ctx context.Context, cause error, msg string, args ...any) *Error {
	e := newError(ctx, ErrExprEval, "expression evaluation failed: "+msg, args...)
	e.cause = cause
	return e
}
