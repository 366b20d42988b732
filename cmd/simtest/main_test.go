package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

func TestRunRejectsUnknownTemplate(t *testing.T) {
	err := run(context.Background(), &appconfig.Config{}, logging.New("error"), "padaria", "Pão Quente", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padaria")
}

func TestRunRequiresConfiguredProfile(t *testing.T) {
	err := run(context.Background(), &appconfig.Config{}, logging.New("error"), "loja", "", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}
