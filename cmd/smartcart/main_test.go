package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/offline"
	"github.com/stretchr/testify/assert"
)

func TestCommandTable(t *testing.T) {
	for name, cmd := range commands {
		assert.NotNil(t, cmd.run, name)
		assert.True(t, strings.HasPrefix(cmd.usage, name), name)
		assert.False(t, cmd.drain && cmd.background, name)
	}
}

func TestQueuedWritesAreNotFailures(t *testing.T) {
	assert.NoError(t, queued(nil))
	assert.NoError(t, queued(&offline.QueuedError{MutationID: "m1", Err: errors.New("unavailable")}))
	assert.ErrorIs(t, queued(model.ErrNotFound), model.ErrNotFound)
}

func TestUsageNamesCommand(t *testing.T) {
	assert.EqualError(t, usage("sync"), "usage: smartcart sync [--clear]")
}

func TestSubcommandDefault(t *testing.T) {
	sub, rest := subcommand(nil, "list")
	assert.Equal(t, "list", sub)
	assert.Empty(t, rest)

	sub, rest = subcommand([]string{"add", "Aldi"}, "list")
	assert.Equal(t, "add", sub)
	assert.Equal(t, []string{"Aldi"}, rest)
}
