package lifecycle

import (
	"context"

	"github.com/yungbote/loresmith/internal/domain"
)

// SubmitDetached submits req on a throwaway controller that closes itself once the job
// settles. The snapshot stays readable through opts.Cache for the eviction grace.
// Nothing is delivered to the caller beyond the initial record.
func SubmitDetached(ctx context.Context, backend Backend, opts Options, req domain.JobRequest) (domain.JobRecord, error) {
	c := New(backend, opts)
	release := func() { go c.Close() }
	c.SetCallbacks(Callbacks{
		OnComplete: func(domain.JobRecord) { release() },
		OnError:    func(string, error) { release() },
	})
	rec, err := c.Submit(ctx, req)
	if err != nil {
		c.Close()
		return domain.JobRecord{}, err
	}
	return rec, nil
}
