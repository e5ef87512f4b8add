/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package appium

import (
	"regexp"
	"strings"
)

const maxShortLineLen = 200

// stacktraceRedacted replaces any stack-trace value embedded in JSON-like
// driver output. Applying the filter twice yields the same line: the
// placeholder matches the redaction pattern and is replaced with itself.
const stacktraceRedacted = `"stacktrace":"[redacted]"`

var (
	// Terminal control sequences: CSI color codes, extended ANSI escapes,
	// then any stray control characters the escapes left behind.
	csiRegex      = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	ansiRegex     = regexp.MustCompile(`\x1b[@-_]`)
	controlsRegex = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

	// Stack traces inside JSON-like text, string and nested-object forms,
	// in both snake and camel case.
	stacktraceStringRegex = regexp.MustCompile(`"(?:stacktrace|stackTrace)"\s*:\s*"(?:[^"\\]|\\.)*"`)
	stacktraceObjectRegex = regexp.MustCompile(`,?\s*"(?:stacktrace|stackTrace)"\s*:\s*\{[^{}]*\}`)

	// Lines that never survive filtering.
	dropPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*at\s+\S`),
		regexp.MustCompile(`Exception in thread`),
		regexp.MustCompile(`(?i)deprecated`),
		regexp.MustCompile(`^Verbose\b`),
		regexp.MustCompile(`^\[debug\]`),
		regexp.MustCompile(`(?i)^welcome to appium`),
		regexp.MustCompile(`(?i)appium\s+v\d+\.\d+`),
		regexp.MustCompile(`(?i)available drivers`),
		regexp.MustCompile(`(?i)non-default server args`),
		regexp.MustCompile(`(?i)^(?:\[HTTP\]|HTTP/|\[W3C\])`),
		regexp.MustCompile(`^\[\s*\]$`),
		regexp.MustCompile(`^[-=*_]{4,}$`),
	}

	// Line families that always survive, regardless of length.
	importantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)server (?:started|listening|running)`),
		regexp.MustCompile(`(?i)listener started`),
		regexp.MustCompile(`(?i)session (?:created|started)`),
		regexp.MustCompile(`(?i)ready to accept`),
		regexp.MustCompile(`(?i)(?:executing|proceeding with) command`),
		regexp.MustCompile(`(?i)command (?:succeeded|failed)`),
		regexp.MustCompile(`(?i)driver.*(?:init|ready)`),
		regexp.MustCompile(`(?i)app (?:launched|installed)`),
		regexp.MustCompile(`(?i)element (?:found|clicked)`),
		regexp.MustCompile(`(?i)navigat(?:ed|ing)`),
		regexp.MustCompile(`(?i)test (?:started|completed)`),
		regexp.MustCompile(`(?i)\b(?:error|fail|failed|warn|warning)\b`),
	}
)

// FilterLine sanitizes one line of driver output and decides whether it is
// worth keeping. The returned string is the cleaned line; keep is false when
// the line should be discarded. The function is idempotent.
func FilterLine(line string) (cleaned string, keep bool) {
	cleaned = csiRegex.ReplaceAllString(line, "")
	cleaned = ansiRegex.ReplaceAllString(cleaned, "")
	cleaned = controlsRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", false
	}

	cleaned = stacktraceObjectRegex.ReplaceAllString(cleaned, "")
	cleaned = stacktraceStringRegex.ReplaceAllString(cleaned, stacktraceRedacted)

	for _, p := range dropPatterns {
		if p.MatchString(cleaned) {
			return cleaned, false
		}
	}

	for _, p := range importantPatterns {
		if p.MatchString(cleaned) {
			return cleaned, true
		}
	}

	return cleaned, len(cleaned) < maxShortLineLen
}
