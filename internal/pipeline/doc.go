// Package pipeline runs an item through an ordered list of named steps and
// fans a batch of items out to goroutines.
//
// A step ends the pipeline for its item by returning an error; the error is
// wrapped in a *StepError naming the step. The download manager uses this to
// express its per-image stages (claim, fetch, hash, filters, persist).
package pipeline
