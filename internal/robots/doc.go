// Package robots answers robots.txt allow/deny queries for the crawl's host
// and supplies sitemap seed URLs.
package robots
