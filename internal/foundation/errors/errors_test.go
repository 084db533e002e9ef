package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConversion, "asset analysis failed").
			WithSeverity(SeverityFatal).
			WithContext("asset", "0123456789abcdef0123456789abcdef").
			Build()

		if err.Category() != CategoryConversion {
			t.Errorf("expected category %s, got %s", CategoryConversion, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "asset analysis failed" {
			t.Errorf("unexpected message %q", err.Message())
		}
		asset, exists := err.Context().GetString("asset")
		if !exists || asset != "0123456789abcdef0123456789abcdef" {
			t.Errorf("expected asset context, got %v", asset)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		err := fmt.Errorf("stage failed: %w", IOError("rename failed").Build())

		if !IsClassified(err) {
			t.Error("expected wrapped error to be classified")
		}
		if !HasCategory(err, CategoryIO) {
			t.Error("expected io category")
		}
		if GetSeverity(err) != SeverityFatal {
			t.Errorf("expected fatal severity, got %s", GetSeverity(err))
		}
	})

	t.Run("Unclassified defaults", func(t *testing.T) {
		err := errors.New("plain")
		if GetCategory(err) != CategoryInternal {
			t.Errorf("expected internal, got %s", GetCategory(err))
		}
		if GetSeverity(err) != SeverityError {
			t.Errorf("expected error severity, got %s", GetSeverity(err))
		}
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := ConversionError("failed").Build()
		derived := base.WithContext("bundle", "characters")

		if _, ok := base.Context().Get("bundle"); ok {
			t.Error("base error context must not be mutated")
		}
		if v, _ := derived.Context().GetString("bundle"); v != "characters" {
			t.Errorf("expected bundle context, got %q", v)
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("original error")
		err := WrapError(originalErr, CategoryIO, "write failed").
			Warning().
			WithContext("path", "AssetBundles/ui").
			Build()

		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}
		if err.Cause() != originalErr {
			t.Error("expected cause to be original error")
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
		}{
			{"CanceledError", CanceledError("test"), CategoryCanceled, SeverityWarning},
			{"UnsavedChangesError", UnsavedChangesError("test"), CategoryUnsavedChanges, SeverityFatal},
			{"ConversionError", ConversionError("test"), CategoryConversion, SeverityFatal},
			{"IOError", IOError("test"), CategoryIO, SeverityFatal},
			{"CacheError", CacheError("test"), CategoryCache, SeverityError},
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal},
			{"HookError", HookError("test"), CategoryHook, SeverityFatal},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
			})
		}
	})
}

func TestErrorContext(t *testing.T) {
	ctx1 := ErrorContext{}.Set("key1", "value1").Set("shared", "original")
	ctx2 := ErrorContext{}.Set("key2", 2).Set("shared", "overridden")

	merged := ctx1.Merge(ctx2)

	if v, _ := merged.GetString("key1"); v != "value1" {
		t.Errorf("expected key1=value1, got %s", v)
	}
	if v, _ := merged.Get("key2"); v != 2 {
		t.Errorf("expected key2=2, got %v", v)
	}
	if v, _ := merged.GetString("shared"); v != "overridden" {
		t.Errorf("expected shared=overridden, got %s", v)
	}
	if _, ok := merged.GetString("key2"); ok {
		t.Error("GetString must reject non-string values")
	}
}

func TestErrorStringAndSentinels(t *testing.T) {
	err := ConversionError("scene analysis failed").
		WithCause(errors.New("missing file")).
		WithBundle("levels").
		WithAsset("0123").
		Build()

	want := "conversion: scene analysis failed [asset=0123 bundle=levels]: missing file"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if got := IOError("rename failed").Build().Error(); got != "io: rename failed" {
		t.Errorf("got %q", got)
	}

	wrapped := fmt.Errorf("stage: %w", err)
	if !errors.Is(wrapped, ErrConversion) {
		t.Error("expected conversion sentinel to match")
	}
	if errors.Is(wrapped, ErrIO) {
		t.Error("io sentinel must not match a conversion error")
	}
	if errors.Is(err, ConversionError("other message").Build()) {
		t.Error("different messages must not match")
	}
	if !errors.Is(CanceledError("stopped").Build(), ErrCanceled) {
		t.Error("expected canceled sentinel to match")
	}
}

func TestBuilderReuseDoesNotLeakContext(t *testing.T) {
	b := IOError("write failed").WithPath("a")
	first := b.Build()
	second := b.WithPath("b").Build()

	if v, _ := first.Context().GetString("path"); v != "a" {
		t.Errorf("first error path changed to %q", v)
	}
	if v, _ := second.Context().GetString("path"); v != "b" {
		t.Errorf("second error path = %q", v)
	}
	if NewError("custom", "x").Build().Severity() != SeverityError {
		t.Error("unknown categories default to error severity")
	}
}

func TestBuilderLocationShorthands(t *testing.T) {
	err := ConversionError("asset analysis failed").
		WithBundle("levels").
		WithAsset("0123").
		WithPath("Assets/Levels/a.unity").
		Build()

	for key, want := range map[string]string{KeyBundle: "levels", KeyAsset: "0123", KeyPath: "Assets/Levels/a.unity"} {
		if got, _ := err.Context().GetString(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}
