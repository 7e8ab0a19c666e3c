// Package review defines the domain types shared between the review-server
// client, the queue, the analyzer, and the processing runner: pending review
// requests, diff revisions, request metadata, and analysis results.
package review
