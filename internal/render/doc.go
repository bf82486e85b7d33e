// Package render drives a headless Chrome through chromedp to obtain the
// markup of JavaScript-heavy pages after lazy-loaded content has appeared.
//
// The renderer is optional. When no browser can be started it reports
// itself unavailable and the crawl continues with static markup only.
package render
