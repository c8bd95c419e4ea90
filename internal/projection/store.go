package projection

import "context"

// Store is the key/value collaborator behind the projector.
//
// Get reports found=false with a nil error when the key is absent. Delete of
// an absent key succeeds. A non-empty version on Save asks the store to
// reject the write with order.ErrVersionConflict when the stored version
// differs; stores without optimistic concurrency ignore it. Every other
// failure is a backend fault.
type Store interface {
	Save(ctx context.Context, key string, value []byte, version string) (newVersion string, err error)
	Get(ctx context.Context, key string) (value []byte, version string, found bool, err error)
	Delete(ctx context.Context, key string) error
}
