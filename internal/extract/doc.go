// Package extract discovers image URLs and outbound links in page markup.
//
// Extractor unions several independent strategies (img and srcset
// attributes, picture sources, inline style url() references, lazy-load data
// attributes, media posters, social preview meta tags, and raw-text scans of
// the markup) and keeps only absolute http(s) URLs whose path ends in a
// recognized image extension. LinkParser walks the DOM for anchors to seed
// the crawl frontier.
package extract
