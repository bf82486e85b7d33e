// Package log builds the slog loggers used by imgscrape.
//
// Loggers produced here mask credentials (cookies, authorization headers,
// tokens, userinfo in URLs) before records reach the output, and can be made
// asynchronous so that a slow terminal or file never stalls the crawl:
//
//	logger, closeLog := log.NewLogger(os.Stderr, log.Options{Verbose: true, Async: true})
//	defer closeLog()
//	log.Category(logger, log.CategoryDownload).Info("saved", "url", u)
package log
