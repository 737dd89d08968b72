package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "sitebuilder.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}
		file, ok := err.Context().GetString("file")
		if !ok || file != "sitebuilder.yaml" {
			t.Errorf("expected context file=sitebuilder.yaml, got %v", file)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		err := fmt.Errorf("stage validate_seo: %w", ValidationError("missing tags").Build())

		if !IsClassified(err) {
			t.Error("expected wrapped error to be classified")
		}
		if !HasCategory(err, CategoryValidation) {
			t.Error("expected validation category")
		}
		if !HasSeverity(err, SeverityFatal) {
			t.Error("expected fatal severity")
		}
		if GetCategory(stdErrors.New("plain")) != CategoryInternal {
			t.Error("unclassified errors default to internal")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	original := stdErrors.New("permission denied")
	err := WrapError(original, CategoryFileSystem, "write page").
		Warning().
		WithContext("path", "dist/index.html").
		Build()

	if !stdErrors.Is(err, original) {
		t.Error("expected wrapped cause to be reachable with errors.Is")
	}
	if err.IsFatal() {
		t.Error("warning error should not be fatal")
	}
	if got := err.Error(); got != "[filesystem:warning] write page: permission denied" {
		t.Errorf("unexpected Error(): %q", got)
	}

	withMore := err.WithContext("attempt", 2)
	if _, ok := err.Context().Get("attempt"); ok {
		t.Error("WithContext must not mutate the original error")
	}
	if v, _ := withMore.Context().Get("attempt"); v != 2 {
		t.Errorf("expected attempt=2, got %v", v)
	}
}

func TestErrorIsMatchesCategoryAndMessage(t *testing.T) {
	a := ConfigError("duplicate build key").WithContext("key", "main").Build()
	b := ConfigError("duplicate build key").Build()
	if !stdErrors.Is(a, b) {
		t.Error("errors with same category and message should match")
	}
	if stdErrors.Is(a, ValidationError("duplicate build key").Build()) {
		t.Error("different categories must not match")
	}
}

func TestErrorContextMerge(t *testing.T) {
	base := ErrorContext{"a": 1, "b": 2}
	merged := base.Merge(ErrorContext{"b": 3})
	if merged["a"] != 1 || merged["b"] != 3 {
		t.Errorf("unexpected merge result: %v", merged)
	}
	var nilCtx ErrorContext
	if got := nilCtx.Set("k", "v"); got["k"] != "v" {
		t.Errorf("Set on nil context should allocate: %v", got)
	}
}
