// Package crawler holds the keyword crawl pipeline's shared types, the
// interfaces its components implement, phrase generation, batch filtering,
// the batch CSV encoding, and the fetch retry policy.
package crawler
