package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appconfig "github.com/wolfman30/funcionariopro/internal/config"
)

func TestNewHTTPServerWriteTimeoutCoversLLM(t *testing.T) {
	srv := newHTTPServer(&appconfig.Config{Port: "9090", LLMTimeout: 30 * time.Second}, http.NotFoundHandler())
	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 45*time.Second, srv.WriteTimeout)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
}

func TestNewHTTPServerMinimumWriteTimeout(t *testing.T) {
	srv := newHTTPServer(&appconfig.Config{Port: "8080"}, http.NotFoundHandler())
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
}
