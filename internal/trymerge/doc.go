// Package trymerge validates pull requests by merging them into disposable
// try branches and evaluating the commit status of the result.
//
// A try-merge is triggered by a comment command on a pull request, e.g.
// "@bot try". The Orchestrator ensures that only one try-merge per pull
// request runs at a time. It creates the try branch at the head of the
// repository's default branch, merges the pull request head into it, waits
// until the commit status of the merge result is final and reports the
// outcome as comment on the pull request.
// The state of every try-merge is recorded as store.TryMergeJob.
package trymerge
