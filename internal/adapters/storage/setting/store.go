package setting

import (
	"context"

	domain "workshopreg/internal/domain/setting"
)

// Store persists named settings.
type Store interface {
	Get(ctx context.Context, name string) (domain.Setting, error)
	Set(ctx context.Context, s domain.Setting) error
}
