package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/store"
)

// StoreLoader returns a Loader that reads the persisted record from models and
// decodes its artifact with reg.
func StoreLoader(models store.ModelStore, reg *estimator.Registry) Loader {
	return func(ctx context.Context, id string) (*Artifact, error) {
		rec, err := models.GetModel(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", id, err)
		}
		est, _, params, err := reg.Decode(rec.Artifact)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", id, err)
		}
		info := *rec
		info.Artifact = nil
		return &Artifact{
			ID:        id,
			Info:      info,
			Params:    params,
			Estimator: est,
			LoadedAt:  time.Now().UTC(),
		}, nil
	}
}
