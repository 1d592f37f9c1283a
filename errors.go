package transcache

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey reports that (key, locale) is already taken.
	ErrDuplicateKey = errors.New("transcache: key already exists for this locale")
	ErrNotFound     = errors.New("transcache: translation not found")

	// ErrLocalState reports a shared provider paired with an in-process
	// GenStore or key registry.
	ErrLocalState = errors.New("transcache: a shared provider needs a shared GenStore, ListKeys and RecordKeys")
)

// InvalidateError is returned by Forget when both the generation bump and the
// entry delete failed, so the entry may still be served.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
