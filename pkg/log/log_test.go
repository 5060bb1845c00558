// Copyright 2018 Google LLC
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

package log

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("logged lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevelFiltering(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}

	l.Debugf("hidden %d\n", 1)
	l.Infof("shown %d\n", 2)
	l.Warningf("shown %d\n", 3)
	if got, want := len(tw.lines), 2; got != want {
		t.Fatalf("got %d lines, want %d: %q", got, want, tw.lines)
	}

	l.SetLevel(Debug)
	l.Debugf("now shown\n")
	if got, want := len(tw.lines), 3; got != want {
		t.Fatalf("got %d lines, want %d: %q", got, want, tw.lines)
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "ring %s is full", "abc")

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	re := regexp.MustCompile(`^W0304 05:06:07\.000008 +` + fmt.Sprint(os.Getpid()) + ` log_test\.go:\d+\] ring abc is full\n$`)
	if !re.MatchString(tw.lines[0]) {
		t.Errorf("line %q does not match %v", tw.lines[0], re)
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	m.Emit(0, Info, time.Now(), "hello %s", "world")
	for _, tw := range []*testWriter{a, b} {
		if diff := cmp.Diff("hello world\n", strings.Join(tw.lines, "")); diff != "" {
			t.Errorf("emitted lines mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 5; i++ {
		l.Warningf("stalled %d", i)
	}
	if diff := cmp.Diff("stalled 0\n", strings.Join(tw.lines, "")); diff != "" {
		t.Errorf("emitted lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPath(t *testing.T) {
	pid := fmt.Sprint(os.Getpid())
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{"/tmp/x.log", "/tmp/x.log"},
		{"/tmp/%COMMAND%.log", "/tmp/read.log"},
		{"/tmp/logs/", "/tmp/logs/shmring.read." + pid + ".log"},
	} {
		if got := BuildPath(tc.pattern, "read"); got != tc.want {
			t.Errorf("BuildPath(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"warning", "info", "debug"} {
		l, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if got := strings.ToLower(l.String()); got != s {
			t.Errorf("ParseLevel(%q) = %v", s, l)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("ParseLevel(loud) succeeded")
	}
}
