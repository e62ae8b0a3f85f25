// Copyright 2026 The SimpleOS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagingerr contains the paging error codes exported as error
// interface pointers. This allows for fast comparison and return operations.
package pagingerr

import (
	goerrors "errors"

	"simpleos.dev/simpleos/pkg/errors"
)

// The following errors are the only ones returned by the paging engine and
// the descriptor tables. They are compared by identity.
var (
	noError             *errors.Error = nil
	ErrNotRootTable                   = errors.New(errors.NotRootTable, "the table is not a root table")
	ErrTableFull                      = errors.New(errors.TableFull, "the table is full")
	ErrNoMapping                      = errors.New(errors.NoMapping, "there is no mapping to this entry")
	ErrNotATable                      = errors.New(errors.NotATable, "this entry contains memory block and not a table")
	ErrInvalidAlignment               = errors.New(errors.InvalidAlignment, "invalid address alignment")
	ErrOutOfMemory                    = errors.New(errors.OutOfMemory, "out of memory")
)

// errorTable is indexed by errors.Code.
var errorTable = [...]*errors.Error{
	errors.NotRootTable:     ErrNotRootTable,
	errors.TableFull:        ErrTableFull,
	errors.NoMapping:        ErrNoMapping,
	errors.NotATable:        ErrNotATable,
	errors.InvalidAlignment: ErrInvalidAlignment,
	errors.OutOfMemory:      ErrOutOfMemory,
}

// FromCode returns the sentinel for code, or nil if code is not valid.
func FromCode(code errors.Code) *errors.Error {
	if !code.IsValid() {
		return noError
	}
	return errorTable[code]
}

// ToError converts *errors.Error to error. A nil *errors.Error becomes a nil
// error interface rather than a non-nil interface holding a nil pointer.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// Equals compares e with err, looking through any %w wrapping of err.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == noError
	}
	if e == noError {
		return false
	}
	return goerrors.Is(err, e)
}

// CodeOf returns the Code of the first *errors.Error in err's chain, and
// false if there is none.
func CodeOf(err error) (errors.Code, bool) {
	var e *errors.Error
	if !goerrors.As(err, &e) || e == nil {
		return 0, false
	}
	return e.Code(), true
}
