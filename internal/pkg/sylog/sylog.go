// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sylog implements the process-wide logger used by every nexcage
// component. It is adapted from apptainer's pkg/sylog: a level-based plain
// text logger by default, with an optional structured JSON backend for
// --log-format json, and the stand-alone build-tag split apptainer used for
// its plugin ABI is dropped since nexcage ships a single binary.
package sylog

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var messageColors = map[messageLevel]string{
	FatalLevel: "\x1b[31m",
	ErrorLevel: "\x1b[31m",
	WarnLevel:  "\x1b[33m",
	InfoLevel:  "\x1b[34m",
}

var (
	noColorLevel messageLevel = 90
	loggerLevel               = InfoLevel
)

var logWriter = (io.Writer)(os.Stderr)

// jsonLogger is nil unless SetFormat("json") has been called.
var jsonLogger *logrus.Logger

// tokenPattern matches a Proxmox API token secret so it never reaches a log
// line, satisfying the §7 "tokens never logged" requirement.
var tokenPattern = regexp.MustCompile(`PVEAPIToken=[^!\s]+![^=\s]+=\S+`)

func init() {
	if lvl := os.Getenv("NEXCAGE_MESSAGELEVEL"); lvl != "" {
		var l int
		if _, err := fmt.Sscanf(lvl, "%d", &l); err == nil {
			loggerLevel = messageLevel(l)
		}
	}
}

// Scrub removes secrets (Proxmox API tokens) from a message before it is
// logged or surfaced in an error.
func Scrub(s string) string {
	return tokenPattern.ReplaceAllString(s, "PVEAPIToken=***")
}

// SetFormat switches the logger between "text" (default) and "json".
func SetFormat(format string) {
	if format != "json" {
		jsonLogger = nil
		return
	}
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(logWriter)
	jsonLogger = l
}

func prefix(logLevel, msgLevel messageLevel) string {
	colorReset := "\x1b[0m"
	messageColor, ok := messageColors[msgLevel]
	if !ok || logLevel != loggerLevel {
		colorReset = ""
		messageColor = ""
	}

	if logLevel < DebugLevel {
		return fmt.Sprintf("%s%-8s%s ", messageColor, msgLevel.String()+":", colorReset)
	}

	pc, _, _, ok := runtime.Caller(3)
	details := runtime.FuncForPC(pc)

	var funcName string
	if ok && details == nil {
		funcName = "????()"
	} else {
		funcNameSplit := strings.Split(details.Name(), ".")
		funcName = funcNameSplit[len(funcNameSplit)-1] + "()"
	}

	pid := os.Getpid()
	pidStr := fmt.Sprintf("[P=%d]", pid)

	return fmt.Sprintf("%s%-8s%s%-12s%-30s", messageColor, msgLevel, colorReset, pidStr, funcName)
}

func writef(msgLevel messageLevel, format string, a ...interface{}) {
	logLevel := getLoggerLevel()
	if logLevel < msgLevel {
		return
	}

	message := Scrub(fmt.Sprintf(format, a...))
	message = strings.TrimRight(message, "\n")

	if jsonLogger != nil {
		entry := jsonLogger.WithField("level", msgLevel.String())
		switch {
		case msgLevel <= ErrorLevel:
			entry.Error(message)
		case msgLevel == WarnLevel:
			entry.Warn(message)
		case msgLevel == DebugLevel:
			entry.Debug(message)
		default:
			entry.Info(message)
		}
		return
	}

	fmt.Fprintf(logWriter, "%s%s\n", prefix(logLevel, msgLevel), message)
}

func getLoggerLevel() messageLevel {
	if loggerLevel <= -noColorLevel {
		return loggerLevel + noColorLevel
	} else if loggerLevel >= noColorLevel {
		return loggerLevel - noColorLevel
	}
	return loggerLevel
}

// Fatalf logs at FatalLevel then exits the process with code 255. Only
// cmd/nexcage should call this; library code must return errors instead.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf writes an ERROR level message. Used when an error is about to be
// returned to the caller, not in place of returning it.
func Errorf(format string, a ...interface{}) {
	writef(ErrorLevel, format, a...)
}

// Warningf writes a WARNING level message.
func Warningf(format string, a ...interface{}) {
	writef(WarnLevel, format, a...)
}

// Infof writes an INFO level message. Shown by default.
func Infof(format string, a ...interface{}) {
	writef(InfoLevel, format, a...)
}

// Verbosef writes a VERBOSE level message.
func Verbosef(format string, a ...interface{}) {
	writef(VerboseLevel, format, a...)
}

// Debugf writes a DEBUG level message, enabled by --debug.
func Debugf(format string, a ...interface{}) {
	writef(DebugLevel, format, a...)
}

// SetLevel explicitly sets the process-wide log level.
func SetLevel(l int, color bool) {
	loggerLevel = messageLevel(l)
	if !color {
		if loggerLevel >= InfoLevel {
			loggerLevel += noColorLevel
		} else if loggerLevel <= LogLevel {
			loggerLevel -= noColorLevel
		}
	}
}

// GetLevel returns the current log level as an integer.
func GetLevel() int {
	return int(getLoggerLevel())
}

// SetWriter sets a new io.Writer for subsequent logging, returning the
// previous writer so tests can capture and later restore output.
func SetWriter(writer io.Writer) io.Writer {
	old := logWriter
	if writer != nil {
		logWriter = writer
		if jsonLogger != nil {
			jsonLogger.SetOutput(writer)
		}
	}
	return old
}
