package preview

import (
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
)

// buildStatus tracks the latest build result for error display.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	lastReport   *build.Report
	hasGoodBuild bool // true once at least one build has been promoted
}

func (bs *buildStatus) record(report *build.Report, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastError = err
	if report != nil {
		bs.lastReport = report
		if report.Promoted {
			bs.hasGoodBuild = true
		}
	}
}

func (bs *buildStatus) get() (report *build.Report, hasGoodBuild bool, err error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.lastReport, bs.hasGoodBuild, bs.lastError
}
