package model

import "time"

// ImageRecord describes one saved image file.
type ImageRecord struct {
	RunID        string    `json:"runId" csv:"run_id"`
	URL          string    `json:"url" csv:"url"`
	PageURL      string    `json:"pageUrl" csv:"page_url"`
	Hash         string    `json:"hash" csv:"hash"`
	Path         string    `json:"path" csv:"path"`
	Bytes        int64     `json:"bytes" csv:"bytes"`
	Width        int       `json:"width,omitempty" csv:"width"`
	Height       int       `json:"height,omitempty" csv:"height"`
	Format       string    `json:"format,omitempty" csv:"format"`
	Converted    bool      `json:"converted,omitempty" csv:"converted"`
	CameraMake   string    `json:"cameraMake,omitempty" csv:"camera_make"`
	CameraModel  string    `json:"cameraModel,omitempty" csv:"camera_model"`
	TakenAt      string    `json:"takenAt,omitempty" csv:"taken_at"`
	DownloadedAt time.Time `json:"downloadedAt" csv:"downloaded_at"`
}

// RunSummary is the outcome of one crawl run as stored in the history
// database and printed by the reports.
type RunSummary struct {
	ID               string        `json:"id" csv:"id"`
	RootURL          string        `json:"rootUrl" csv:"root_url"`
	Mode             string        `json:"mode" csv:"mode"`
	State            string        `json:"state" csv:"state"`
	StartedAt        time.Time     `json:"startedAt" csv:"started_at"`
	FinishedAt       time.Time     `json:"finishedAt" csv:"finished_at"`
	Resumed          bool          `json:"resumed" csv:"resumed"`
	PagesFound       int64         `json:"pagesFound" csv:"pages_found"`
	PagesCrawled     int64         `json:"pagesCrawled" csv:"pages_crawled"`
	ImagesFound      int64         `json:"imagesFound" csv:"images_found"`
	ImagesDownloaded int64         `json:"imagesDownloaded" csv:"images_downloaded"`
	ImagesSkipped    int64         `json:"imagesSkipped" csv:"images_skipped"`
	ImagesFailed     int64         `json:"imagesFailed" csv:"images_failed"`
	BytesDownloaded  int64         `json:"bytesDownloaded" csv:"bytes_downloaded"`
	Error            string        `json:"error,omitempty" csv:"error"`
	Duration         time.Duration `json:"-" csv:"-"`
}
