package bridge

import "github.com/olgasafonova/git-remote-mediawiki/wiki"

// IsEditConflict reports whether a failed edit was rejected because the
// page changed since the base revision this helper knew about. Such
// failures are recoverable by pulling; every other edit failure is fatal.
func IsEditConflict(err error) bool {
	if apiErr, ok := wiki.AsAPIError(err); ok {
		return apiErr.IsConflict()
	}
	return false
}
