// Package build runs the site build pipeline.
//
// A build composes pages into a staging directory next to the configured
// output directory, copies their assets, optimizes images, validates SEO
// tags and writes the sitemap. The staging directory replaces the output
// directory only when every fatal check has passed, so a failed build
// never leaves a partial site behind.
//
// Every run produces a Report which is persisted as build-report.json in
// the report directory regardless of outcome.
package build
