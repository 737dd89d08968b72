// Package errors provides the classified error primitives used across sitebuilder.
//
// Every failure that can abort a build is a ClassifiedError carrying a category
// (config, validation, filesystem, ...), a severity and structured context. The
// CLI adapter maps categories to process exit codes, so callers only need to
// classify an error once at the point where it is first understood.
//
// Example usage:
//
//	err := errors.ConfigError("duplicate build key").
//		WithContext("key", key).
//		WithContext("first", firstPath).
//		Build()
package errors
