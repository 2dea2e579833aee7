// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"path/filepath"
	"regexp"
	"strings"
)

// CrashAnalyzer inspects the tail of the backend's output to explain an
// unexpected exit.
type CrashAnalyzer struct {
	tracebackRe *regexp.Regexp
	frameRe     *regexp.Regexp
	exceptionRe *regexp.Regexp
	moduleRe    *regexp.Regexp
	portRe      *regexp.Regexp
	oomRe       *regexp.Regexp
	errorRe     *regexp.Regexp
}

// NewCrashAnalyzer creates a new crash analyzer.
func NewCrashAnalyzer() *CrashAnalyzer {
	return &CrashAnalyzer{
		tracebackRe: regexp.MustCompile(`^Traceback \(most recent call last\):`),
		frameRe:     regexp.MustCompile(`^\s*File "([^"]+)", line (\d+)`),
		exceptionRe: regexp.MustCompile(`^([A-Za-z_][\w.]*(Error|Exception|Interrupt|Exit)):?\s*(.*)$`),
		moduleRe:    regexp.MustCompile(`(ModuleNotFoundError|ImportError): (.*)`),
		portRe:      regexp.MustCompile(`(?i)(address already in use|\[Errno (48|98)\])`),
		oomRe:       regexp.MustCompile(`(MemoryError|(?i:cannot allocate memory|out of memory))`),
		errorRe:     regexp.MustCompile(`^(ERROR|error|Error):`),
	}
}

// Analyze examines output lines and the exit code to determine a crash reason.
func (a *CrashAnalyzer) Analyze(lines []string, exitCode int) *CrashResult {
	result := &CrashResult{ExitCode: exitCode}

	if exitCode == 0 {
		result.Reason = CrashReasonNone
		return result
	}

	// Environment problems are more useful than the traceback they cause.
	if a.detectMissingModule(lines, result) ||
		a.detectPortInUse(lines, result) ||
		a.detectOOM(lines, result) ||
		a.detectTraceback(lines, result) ||
		a.detectError(lines, result) {
		return result
	}

	a.analyzeExitCode(result)
	if result.Details == "" {
		result.Details = lastLines(lines, 3)
	}
	return result
}

func (a *CrashAnalyzer) detectMissingModule(lines []string, result *CrashResult) bool {
	for _, line := range lines {
		if m := a.moduleRe.FindStringSubmatch(line); m != nil {
			result.Reason = CrashReasonMissingModule
			result.Details = m[2]
			return true
		}
	}
	return false
}

func (a *CrashAnalyzer) detectPortInUse(lines []string, result *CrashResult) bool {
	for _, line := range lines {
		if a.portRe.MatchString(line) {
			result.Reason = CrashReasonPortInUse
			result.Details = strings.TrimSpace(line)
			return true
		}
	}
	return false
}

func (a *CrashAnalyzer) detectOOM(lines []string, result *CrashResult) bool {
	for _, line := range lines {
		if a.oomRe.MatchString(line) {
			result.Reason = CrashReasonOOM
			result.Details = "out of memory"
			return true
		}
	}
	return false
}

// detectTraceback reports the last traceback in the output. The exception
// line that ends it becomes the details, the innermost frame the location.
func (a *CrashAnalyzer) detectTraceback(lines []string, result *CrashResult) bool {
	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if a.tracebackRe.MatchString(lines[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}

	result.Reason = CrashReasonException
	for _, line := range lines[start:] {
		result.StackTrace = append(result.StackTrace, line)
		if m := a.frameRe.FindStringSubmatch(line); m != nil {
			result.Location = filepath.Base(m[1]) + ":" + m[2]
			continue
		}
		if a.exceptionRe.MatchString(line) {
			result.Details = strings.TrimSpace(line)
			break
		}
	}
	return true
}

func (a *CrashAnalyzer) detectError(lines []string, result *CrashResult) bool {
	for i := len(lines) - 1; i >= 0; i-- {
		if a.errorRe.MatchString(lines[i]) {
			result.Reason = CrashReasonError
			result.Details = strings.TrimSpace(lines[i])
			return true
		}
	}
	return false
}

func (a *CrashAnalyzer) analyzeExitCode(result *CrashResult) {
	switch {
	case result.ExitCode >= 128:
		// 128+n means killed by signal n
		result.Reason = CrashReasonSignal
		result.Details = signalName(result.ExitCode - 128)
	case result.ExitCode > 0:
		result.Reason = CrashReasonError
	default:
		result.Reason = CrashReasonUnknown
	}
}

func lastLines(lines []string, n int) string {
	var tail []string
	for i := len(lines) - 1; i >= 0 && len(tail) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			tail = append([]string{line}, tail...)
		}
	}
	return strings.Join(tail, " | ")
}

func signalName(num int) string {
	switch num {
	case 1:
		return "SIGHUP"
	case 2:
		return "SIGINT"
	case 3:
		return "SIGQUIT"
	case 6:
		return "SIGABRT"
	case 9:
		return "SIGKILL"
	case 11:
		return "SIGSEGV"
	case 15:
		return "SIGTERM"
	default:
		return "signal"
	}
}
