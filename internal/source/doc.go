// Package source resolves user-supplied video URLs.
//
// Parse normalizes every accepted spelling of a video URL into a Reference
// whose Key is the dedup key used by the job registry. A Resolver then asks a
// ManifestSource, either yt-dlp or an HTTP manifest API, for the streams on
// offer, and Manifest.Select chooses the tracks worth downloading for the
// configured target. Manifests carry expiring upstream tokens and are never
// cached beyond one job.
package source
