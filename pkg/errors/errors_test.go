package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil || err.Context == nil {
			t.Error("Details or Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets fatal defaults", func(t *testing.T) {
		for _, code := range []ErrorCode{ErrCodeCatalogFetch, ErrCodeUnsupportedPlatform} {
			if !NewError(code, "x").Fatal {
				t.Errorf("%s should be fatal by default", code)
			}
		}
		for _, code := range []ErrorCode{ErrCodeMountFailed, ErrCodeUnmountBusy, ErrCodeDirectoryCreate} {
			if NewError(code, "x").Fatal {
				t.Errorf("%s should not be fatal by default", code)
			}
		}
	})

	t.Run("busy unmount is user actionable", func(t *testing.T) {
		if !NewError(ErrCodeUnmountBusy, "busy").UserActionable {
			t.Error("UnmountBusy should be user actionable")
		}
		if NewError(ErrCodeInternalError, "oops").UserActionable {
			t.Error("InternalError should not be user actionable")
		}
	})
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want ErrorCategory
	}{
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeCatalogFetch, CategoryCatalog},
		{ErrCodeFolderGraphInvalid, CategoryCatalog},
		{ErrCodeMountAccessDenied, CategoryMount},
		{ErrCodeUnmountBusy, CategoryMount},
		{ErrCodeDirectoryNotEmpty, CategoryFilesystem},
		{ErrCodeUnsupportedPlatform, CategoryHost},
		{ErrCodeCommandFailed, CategoryHost},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.want {
				t.Errorf("GetCategory(%s) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestWSMountError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *WSMountError
		want string
	}{
		{
			name: "code and message only",
			err:  NewError(ErrCodeMountFailed, "mount failed"),
			want: "MOUNT_FAILED: mount failed",
		},
		{
			name: "with component",
			err:  NewError(ErrCodeMountFailed, "mount failed").WithComponent("handler"),
			want: "[handler] MOUNT_FAILED: mount failed",
		},
		{
			name: "with component and operation",
			err:  NewError(ErrCodeUnmountBusy, "busy").WithComponent("handler").WithOperation("unmount"),
			want: "[handler:unmount] UNMOUNT_BUSY: busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWSMountError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(cause, ErrCodeCommandFailed, "mount listing failed")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, NewError(ErrCodeCommandFailed, "other message")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, NewError(ErrCodeMountFailed, "")) {
		t.Error("errors.Is should not match a different code")
	}

	wrapped := fmt.Errorf("unmount pass: %w", err)
	if !HasCode(wrapped, ErrCodeCommandFailed) {
		t.Error("HasCode should see through fmt.Errorf wrapping")
	}
	if !IsFatal(wrapped) {
		t.Error("COMMAND_FAILED should be fatal")
	}
}

func TestHasCodeWithJoin(t *testing.T) {
	joined := errors.Join(
		NewError(ErrCodeUnmountBusy, "a").WithPath("/w/a"),
		NewError(ErrCodeDirectoryNotEmpty, "b"),
	)
	if !HasCode(joined, ErrCodeUnmountBusy) || !HasCode(joined, ErrCodeDirectoryNotEmpty) {
		t.Error("HasCode should search joined errors")
	}
	if IsFatal(joined) {
		t.Error("joined non-fatal errors should not be fatal")
	}
	if !IsUserActionable(joined) {
		t.Error("joined busy error should be user actionable")
	}
}

func TestWithPath(t *testing.T) {
	err := NewError(ErrCodeUnmountBusy, "failed to unmount").WithPath("/home/u/workspace/data")
	if err.Path() != "/home/u/workspace/data" {
		t.Errorf("Path() = %q", err.Path())
	}
	if !strings.Contains(err.DetailedDiagnostic(), "path: /home/u/workspace/data") {
		t.Error("diagnostic should list the path")
	}
	if !strings.Contains(err.DetailedDiagnostic(), "not being used by other processes") {
		t.Error("diagnostic should include the busy recommendation")
	}
}

func TestWSMountError_JSON(t *testing.T) {
	err := NewError(ErrCodeMountAccessDenied, "forbidden").WithComponent("handler").WithPath("/w/x")

	var decoded map[string]interface{}
	if jerr := json.Unmarshal([]byte(err.JSON()), &decoded); jerr != nil {
		t.Fatalf("JSON() produced invalid JSON: %v", jerr)
	}
	if decoded["code"] != string(ErrCodeMountAccessDenied) {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["user_actionable"] != true {
		t.Errorf("user_actionable = %v", decoded["user_actionable"])
	}
}

func TestWSMountError_String(t *testing.T) {
	err := Wrap(errors.New("boom"), ErrCodeCatalogFetch, "catalog down").WithOperation("mount_all")
	s := err.String()
	for _, want := range []string{"Code=CATALOG_FETCH", "Operation=mount_all", "Fatal=true", `Cause="boom"`} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %s, missing %s", s, want)
		}
	}
}
