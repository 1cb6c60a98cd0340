// Package federation verifies authorization codes with external identity
// providers for the IAM and OAUTH2 login types.
package federation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"golang.org/x/oauth2"
)

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// exchangeError separates a provider rejecting the code from the provider
// being unreachable.
func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return errors.Wrapf(errors.ErrVerifierUnavailable, "token exchange status %d", re.Response.StatusCode)
		}
		return fmt.Errorf("token exchange rejected: %s", re.ErrorCode)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrapf(errors.Join(errors.ErrVerifierUnavailable, err), "token exchange")
	}
	return errors.Wrapf(errors.ErrVerifierUnavailable, "token exchange: %v", err)
}
