package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFlagHandling(t *testing.T) {
	assert.NoError(t, run([]string{"-version"}))
	assert.NoError(t, run([]string{"-h"}))
	assert.Error(t, run([]string{"-log-format", "xml"}))
}

func TestRunValidateOnly(t *testing.T) {
	assert.NoError(t, run([]string{"-validate", "-transport", "channel", "-log-level", "error"}))
	assert.Error(t, run([]string{"-validate", "-transport", "kafka", "-log-level", "error"}))
}

func TestRunFailsOnUnknownTransport(t *testing.T) {
	assert.Error(t, run([]string{"-transport", "carrier-pigeon", "-log-level", "error"}))
}
