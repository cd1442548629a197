//go:build novosk

package vosk

import (
	"errors"

	"github.com/blockdelete/blockdelete/internal/recognition"
)

// ErrUnavailable is returned by binaries built with the novosk tag.
var ErrUnavailable = errors.New("built without vosk support (novosk tag)")

// New always fails in novosk builds.
func New(string, int, []string) (recognition.Engine, error) {
	return nil, ErrUnavailable
}
