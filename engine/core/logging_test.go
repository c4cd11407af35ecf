package core

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogErrorKeepsPercentSigns(t *testing.T) {
	var buf bytes.Buffer
	l := getLogger()
	l.SetOutput(&buf)
	defer l.SetOutput(os.Stderr)

	err := Errorf("reading %s", "assets/100%_gray.png")
	LogError("%s", err)

	assert.Contains(t, buf.String(), "reading assets/100%_gray.png")
	assert.NotContains(t, buf.String(), "%!")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, WarnLevel, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
