// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package nexerr is the single error taxonomy shared by every nexcage
// component (spec §7). Backend-specific errors are only ever translated
// into this taxonomy at the Backend Router; every other layer propagates
// a *Error unchanged.
package nexerr

import (
	"fmt"

	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/pkg/errors"
)

// Kind is one variant of the central error taxonomy.
type Kind int

const (
	UsageError Kind = iota
	NotFound
	AlreadyExists
	InvalidBundle
	InvalidArchive
	UnsupportedFormat
	DigestMismatch
	CircularDependency
	LayerInUse
	MountPointExists
	InvalidOverlay
	ReadOnly
	ConversionFailed
	ProxmoxAPIError
	ProxmoxCLIError
	ToolMissing
	Unreachable
	Timeout
	UnsupportedBackend
	AmbiguousName
	InternalError
)

func (k Kind) String() string {
	switch k {
	case UsageError:
		return "UsageError"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidBundle:
		return "InvalidBundle"
	case InvalidArchive:
		return "InvalidArchive"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case DigestMismatch:
		return "DigestMismatch"
	case CircularDependency:
		return "CircularDependency"
	case LayerInUse:
		return "LayerInUse"
	case MountPointExists:
		return "MountPointExists"
	case InvalidOverlay:
		return "InvalidOverlay"
	case ReadOnly:
		return "ReadOnly"
	case ConversionFailed:
		return "ConversionFailed"
	case ProxmoxAPIError:
		return "ProxmoxApiError"
	case ProxmoxCLIError:
		return "ProxmoxCliError"
	case ToolMissing:
		return "ToolMissing"
	case Unreachable:
		return "Unreachable"
	case Timeout:
		return "Timeout"
	case UnsupportedBackend:
		return "UnsupportedBackend"
	case AmbiguousName:
		return "AmbiguousName"
	default:
		return "InternalError"
	}
}

// Error is the concrete type behind every taxonomy member. Extra fields
// (status code, exit code of a CLI subprocess, conversion stage, ...) are
// carried in Detail for formatting; callers that need to branch on them
// should use errors.As to reach the *Error and read its Kind and Detail.
type Error struct {
	Kind    Kind
	Detail  string
	Wrapped error
}

func (e *Error) Error() string {
	msg := sylog.Scrub(e.Kind.String())
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, sylog.Scrub(e.Detail))
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %s", msg, sylog.Scrub(e.Wrapped.Error()))
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds a taxonomy error with a formatted detail message.
func New(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, a...)}
}

// Wrap attaches a taxonomy Kind to an underlying error, preserving it via
// Unwrap/errors.Is the way the teacher wraps with github.com/pkg/errors.
func Wrap(kind Kind, err error, format string, a ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, a...), Wrapped: errors.WithStack(err)}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error; otherwise it returns InternalError, since an un-taxonomized
// error reaching the router is itself an invariant violation per §7.
func KindOf(err error) Kind {
	var e *Error
	if errAs(err, &e) {
		return e.Kind
	}
	return InternalError
}

func errAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a Kind to the CLI exit code table in spec §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case UsageError:
		return 2
	case UnsupportedBackend:
		return 64
	case NotFound:
		return 65
	case AlreadyExists, LayerInUse, AmbiguousName:
		return 66
	case InvalidBundle:
		return 71
	case InvalidArchive, UnsupportedFormat:
		return 74
	case DigestMismatch, CircularDependency, ReadOnly, ConversionFailed,
		ProxmoxAPIError, ProxmoxCLIError, ToolMissing, Unreachable, Timeout, InternalError:
		return 70
	default:
		return 70
	}
}
