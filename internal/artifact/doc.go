// Package artifact stores finished downloads on the local filesystem or in
// S3 and builds the filenames offered to clients.
package artifact
