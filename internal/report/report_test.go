package report

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type kindErr struct{ kind string }

func (e *kindErr) Error() string { return e.kind + " failed" }
func (e *kindErr) Kind() string  { return e.kind }

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &kindErr{kind: "protocol"})

	assert.Equal(t, "protocol", KindOf(wrapped))
	assert.Equal(t, "unknown", KindOf(errors.New("plain")))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Log(logger).Report(&kindErr{kind: "fetch"})

	out := buf.String()
	assert.True(t, strings.Contains(out, "kind=fetch"), out)
	assert.True(t, strings.Contains(out, "level=WARN"), out)
}

func TestMultiAndRecorder(t *testing.T) {
	var a, b Recorder
	r := Multi(&a, nil, &b)

	r.Report(errors.New("one"))
	r.Report(errors.New("two"))

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, b.Len())
	assert.EqualError(t, b.Errors()[1], "two")
}
