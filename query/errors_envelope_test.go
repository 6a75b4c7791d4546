package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-authbroker/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestListAccountsMessage_ValidateReturnsRichError(t *testing.T) {
	err := (ListAccountsMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.BrokerErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.BrokerErrorBadInput, rich.TextCode)
	}
}

func TestListAccountsQuery_NilReaderReturnsRichError(t *testing.T) {
	_, err := NewListAccountsQuery(nil).Query(context.Background(), ListAccountsMessage{ProviderID: "github"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.BrokerErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.BrokerErrorInternal, rich.TextCode)
	}
}
