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

// Package errors holds the standardized error definition for SimpleOS.
package errors

import "fmt"

// Code identifies the class of an Error. The set is closed.
type Code uint8

// Error codes shared by the paging engine and the descriptor tables.
const (
	// NotRootTable means an operation required the top-level table but was
	// given a table at some other level.
	NotRootTable Code = iota + 1

	// TableFull means a fixed-capacity table has no free slot.
	TableFull

	// NoMapping means no present leaf entry covers an address.
	NoMapping

	// NotATable means an entry maps a block of memory where a sub-table was
	// expected.
	NotATable

	// InvalidAlignment means an address or frame is not aligned to the
	// boundary its use requires.
	InvalidAlignment

	// OutOfMemory means the frame allocator could not supply a frame.
	OutOfMemory

	// numCodes is one past the last valid Code.
	numCodes
)

// String implements fmt.Stringer.String.
func (c Code) String() string {
	switch c {
	case NotRootTable:
		return "NotRootTable"
	case TableFull:
		return "TableFull"
	case NoMapping:
		return "NoMapping"
	case NotATable:
		return "NotATable"
	case InvalidAlignment:
		return "InvalidAlignment"
	case OutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// IsValid returns true if c is one of the declared codes.
func (c Code) IsValid() bool {
	return c >= NotRootTable && c < numCodes
}

// Error represents a paging or descriptor table failure with a descriptive
// message.
type Error struct {
	code    Code
	message string
}

// New creates a new *Error.
func New(code Code, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Code returns the underlying Code value.
func (e *Error) Code() Code { return e.code }
