// Package copyutil copies payload trees into the archive store, preferring
// the platform bulk-copy tool and falling back to a native recursive copy.
package copyutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Strategy copies the contents of src into dst, preserving file modification
// times. dst is created by the strategy.
type Strategy interface {
	Name() string
	Copy(ctx context.Context, src, dst string) error
}

// CopyTree tries each strategy in platform order. A strategy's failure is
// logged and the next one tried; the error returned joins every failure when
// all strategies are exhausted.
func CopyTree(ctx context.Context, log zerolog.Logger, src, dst string) error {
	var errs []error
	for _, s := range DefaultStrategies() {
		err := s.Copy(ctx, src, dst)
		if err == nil {
			log.Info().Str("strategy", s.Name()).Str("src", src).Str("dst", dst).Msg("copy complete")
			return nil
		}
		log.Warn().Err(err).Str("strategy", s.Name()).Msg("copy strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}
