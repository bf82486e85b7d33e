// Package main provides the entry point for the imgscrape CLI.
//
// imgscrape crawls a web page or a whole site and downloads the images it
// finds, with politeness delays, robots.txt compliance and resumable
// checkpoints.
//
// Usage:
//
//	imgscrape crawl <url>
//	imgscrape crawl --single <url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
