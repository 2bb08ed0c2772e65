package cluster

import (
	"github.com/dd0wney/dualdb/pkg/logging"
)

// closer is anything with a Close that cannot fail, such as a replica pool.
type closer interface {
	Close()
}

// resourceCleanup closes registered resources in reverse order (LIFO).
//
//	cleanup := newResourceCleanup(logger)
//	defer cleanup.Cleanup()
//
//	primary, err := open(...)
//	if err != nil {
//	    return err
//	}
//	cleanup.Add(primary, "primary pool")
//
//	// Success: keep everything open.
//	cleanup.Clear()
type resourceCleanup struct {
	logger    logging.Logger
	resources []namedCloser
}

type namedCloser struct {
	closer closer
	name   string
}

func newResourceCleanup(logger logging.Logger) *resourceCleanup {
	return &resourceCleanup{
		logger:    logger,
		resources: make([]namedCloser, 0, 4),
	}
}

// Add registers a resource to be closed.
func (rc *resourceCleanup) Add(c closer, name string) {
	rc.resources = append(rc.resources, namedCloser{closer: c, name: name})
}

// Cleanup closes every registered resource, newest first. It is idempotent.
func (rc *resourceCleanup) Cleanup() {
	for i := len(rc.resources) - 1; i >= 0; i-- {
		r := rc.resources[i]
		if r.closer == nil {
			continue
		}
		rc.logger.Debug("closing resource", logging.String("resource", r.name))
		r.closer.Close()
	}
	rc.resources = rc.resources[:0]
}

// Clear forgets every resource without closing it.
func (rc *resourceCleanup) Clear() {
	rc.resources = rc.resources[:0]
}

// Len returns the number of registered resources.
func (rc *resourceCleanup) Len() int {
	return len(rc.resources)
}
