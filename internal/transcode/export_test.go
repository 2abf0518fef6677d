package transcode

// BuildArgs exposes argument construction to tests.
var BuildArgs = buildArgs
