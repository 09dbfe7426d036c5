//go:build !onnx

package cli

import (
	"errors"

	"github.com/becomeliminal/affect-memory/internal/config"
	"github.com/becomeliminal/affect-memory/memory"
)

func newONNXEmbedder(*config.Config) (memory.Embedder, func() error, error) {
	return nil, nil, errors.New("affectd was built without ONNX support; rebuild with -tags onnx")
}
