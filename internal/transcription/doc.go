// Package transcription implements the HTTP client for the transcription
// endpoint. A recording is uploaded as a single multipart/form-data file part
// and the JSON reply is classified into a transcript or a typed voiceerr
// failure. Network failures may be retried with exponential backoff and
// concurrent submissions are bounded by a semaphore.
package transcription
