// Package model defines the data shared between the crawler, the download
// manager, the checkpoint store and the history database.
//
// The types here carry no behavior beyond normalization and synchronized set
// membership, so that every other package can depend on them without import
// cycles.
package model
