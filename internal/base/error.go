// Copyright 2024 The Shale author and other contributors.
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

package base

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

var (
	// ErrNotFound means that a get or delete call did not find the requested
	// key.
	ErrNotFound = errors.New("shale: not found")
	// ErrNotSupported means that the requested operation is not supported by
	// this build or format version.
	ErrNotSupported = errors.New("shale: not supported")
	// ErrInvalidArgument means that a caller-supplied argument was malformed.
	ErrInvalidArgument = errors.New("shale: invalid argument")
	// ErrCorruption is a marker error for all on-disk corruption. Use
	// IsCorruptionError rather than direct comparison.
	ErrCorruption = errors.New("shale: corruption")
)

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks the given error as a corruption error.
func MarkCorruptionError(err error) error {
	if IsCorruptionError(err) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError reports whether the error indicates on-disk corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// Safe wraps a value so that error and log formatting treats it as free of
// user data.
func Safe(v interface{}) interface{} {
	return redact.Safe(v)
}
