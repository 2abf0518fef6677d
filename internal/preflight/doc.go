// Package preflight provides readiness checks for the filesystem paths,
// disk space, external binaries, and manifest backend vidgrab depends on.
//
// These checks run in three contexts:
//   - The daemon calls RunAll at startup and refuses to serve when any
//     check fails. Missing binaries from CheckSystemDeps are only logged.
//   - The job orchestrator calls EnsureFreeSpace before each fetch so a job
//     fails fast with ResourceLimitError instead of filling the disk.
//   - The health endpoint reports CheckSystemDeps results as dependencies.
package preflight
