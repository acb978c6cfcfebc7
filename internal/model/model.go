// Package model declares the collaborator interfaces through which the
// coordination substrate talks to the actual neural model. The substrate
// never inspects a model; it only loads one from archived artifacts and
// invokes it.
package model

import (
	"context"

	"github.com/dyluth/kiln/internal/params"
)

// CPUDevice selects CPU placement when loading a model.
// Non-negative values select the accelerator with that index.
const CPUDevice = -1

// Handle is an opaque loaded model.
type Handle interface {
	// Invoke runs the model on one batch of named inputs and returns its
	// named outputs.
	Invoke(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// Loader constructs a model from archived artifacts.
//
// The config tree passed to Load includes a "vocabulary" key pointing at the
// extracted vocabulary directory; implementations consume (and may mutate)
// the tree, which is why callers hand over a duplicate.
type Loader interface {
	Load(ctx context.Context, config params.Params, weightsPath string, device int) (Handle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, config params.Params, weightsPath string, device int) (Handle, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, config params.Params, weightsPath string, device int) (Handle, error) {
	return f(ctx, config, weightsPath, device)
}
