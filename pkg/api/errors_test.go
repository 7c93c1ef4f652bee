package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kindryd/askflash-mcp/pkg/coordinator"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
)

func TestMapErrorTranslatesKnownDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"task not found", taskstore.ErrTaskNotFound, http.StatusNotFound},
		{"unknown template", coordinator.ErrUnknownTemplate, http.StatusNotFound},
		{"already terminal", coordinator.ErrAlreadyTerminal, http.StatusNotFound},
		{"unrecognized error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			httpErr := mapError(tc.err)
			assert.Equal(t, tc.code, httpErr.Code)
		})
	}
}

func TestMapErrorWrapsUnderlyingError(t *testing.T) {
	wrapped := errors.New("not found: task-1")
	err := errors.Join(wrapped, taskstore.ErrTaskNotFound)
	httpErr := mapError(err)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
