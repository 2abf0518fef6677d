// Package fileutil holds filesystem helpers shared by artifact storage and
// the work directory sweeper.
package fileutil
