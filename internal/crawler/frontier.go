package crawler

import (
	"slices"

	"github.com/nao1215/imgscrape/internal/model"
)

// frontier is the FIFO queue of pages to visit. Only the crawl goroutine
// touches it.
type frontier struct {
	tasks []model.CrawlTask
	// seen holds normalized URLs ever enqueued, so a link is queued once.
	seen *model.URLSet
}

func newFrontier() *frontier {
	return &frontier{seen: model.NewURLSet()}
}

// push enqueues task unless its URL was enqueued before and reports whether
// it did.
func (f *frontier) push(task model.CrawlTask) bool {
	if !f.seen.Claim(model.NormalizeURL(task.URL)) {
		return false
	}
	f.tasks = append(f.tasks, task)
	return true
}

// pushFront puts task back at the head of the queue.
func (f *frontier) pushFront(task model.CrawlTask) {
	f.tasks = slices.Insert(f.tasks, 0, task)
}

func (f *frontier) pop() (model.CrawlTask, bool) {
	if len(f.tasks) == 0 {
		return model.CrawlTask{}, false
	}
	task := f.tasks[0]
	f.tasks[0] = model.CrawlTask{}
	f.tasks = f.tasks[1:]
	return task, true
}

func (f *frontier) len() int {
	return len(f.tasks)
}

// pending returns a copy of the queued tasks.
func (f *frontier) pending() []model.CrawlTask {
	return slices.Clone(f.tasks)
}
