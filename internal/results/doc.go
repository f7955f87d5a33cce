// Package results caches processing results fetched on job inspection.
//
// A result is fetched lazily the first time a job is inspected. Channel
// events may then replace individual sections (transcription, chapters,
// analytics) but never create a result that was not fetched.
package results
