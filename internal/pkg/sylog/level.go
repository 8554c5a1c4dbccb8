// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sylog

// messageLevel mirrors the teacher's scale: negative levels are always
// shown, positive levels require increasing verbosity.
type messageLevel int

const (
	FatalLevel   messageLevel = iota - 4
	ErrorLevel                // -3
	WarnLevel                 // -2
	LogLevel                  // -1
	InfoLevel                 // 0, default
	VerboseLevel              // 1
	DebugLevel                // 2
)

func (l messageLevel) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case LogLevel:
		return "LOG"
	case InfoLevel:
		return "INFO"
	case VerboseLevel:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}
