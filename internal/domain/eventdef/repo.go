package eventdef

import "context"

type Repository interface {
	Create(ctx context.Context, def *Definition) error
	GetByName(ctx context.Context, name string) (*Definition, error)
	List(ctx context.Context, category string) ([]*Definition, error)
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, name string) error
}
