package model

import "time"

// Checkpoint is the durable projection of a crawl's state. It is stored as a
// whole JSON document keyed by RootURL.
type Checkpoint struct {
	RootURL   string    `json:"rootUrl"`
	RunID     string    `json:"runId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	VisitedURLs      []string `json:"visitedUrls"`
	DownloadedURLs   []string `json:"downloadedUrls"`
	DownloadedHashes []string `json:"downloadedHashes"`

	// PendingTasks is the frontier at the time of the snapshot, so that a
	// resumed run continues the breadth-first order.
	PendingTasks []CrawlTask `json:"pendingTasks,omitempty"`

	PagesProcessed   int64 `json:"pagesProcessed"`
	ImagesFound      int64 `json:"imagesFound"`
	ImagesDownloaded int64 `json:"imagesDownloaded"`
	ImagesSkipped    int64 `json:"imagesSkipped"`
	ImagesFailed     int64 `json:"imagesFailed"`
	BytesDownloaded  int64 `json:"bytesDownloaded"`
}

// NewCheckpoint returns an empty checkpoint for rootURL created at now.
func NewCheckpoint(rootURL string, now time.Time) *Checkpoint {
	return &Checkpoint{
		RootURL:          rootURL,
		CreatedAt:        now,
		UpdatedAt:        now,
		VisitedURLs:      []string{},
		DownloadedURLs:   []string{},
		DownloadedHashes: []string{},
	}
}
