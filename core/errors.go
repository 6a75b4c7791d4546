package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadInput                 = "AUTH_BAD_INPUT"
	BrokerErrorInvalidOptionCombination = "AUTH_INVALID_OPTION_COMBINATION"
	BrokerErrorProviderNotRegistered    = "AUTH_PROVIDER_NOT_REGISTERED"
	BrokerErrorProviderDuplicate        = "AUTH_PROVIDER_DUPLICATE"
	BrokerErrorDeclaredDuplicate        = "AUTH_DECLARED_DUPLICATE"
	BrokerErrorChallengesUnsupported    = "AUTH_CHALLENGES_UNSUPPORTED"
	BrokerErrorServerUnsupported        = "AUTH_AUTHORIZATION_SERVER_UNSUPPORTED"
	BrokerErrorConsentDeclined          = "AUTH_CONSENT_DECLINED"
	BrokerErrorActivationTimeout        = "AUTH_ACTIVATION_TIMEOUT"
	BrokerErrorNoAccounts               = "AUTH_NO_ACCOUNTS"
	BrokerErrorRegistrationFailed       = "AUTH_CLIENT_REGISTRATION_FAILED"
	BrokerErrorInternal                 = "AUTH_INTERNAL_ERROR"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func errInvalidOptionCombination(first, second string) *goerrors.Error {
	return newBrokerError(
		"invalid combination of options; remove one of: "+first+", "+second,
		goerrors.CategoryBadInput,
		BrokerErrorInvalidOptionCombination,
	)
}

func errProviderNotRegistered(providerID string) *goerrors.Error {
	return newBrokerError(
		"authentication provider not registered: "+providerID,
		goerrors.CategoryNotFound,
		BrokerErrorProviderNotRegistered,
	)
}

func errProviderDuplicate(providerID string) *goerrors.Error {
	return newBrokerError(
		"authentication provider already registered: "+providerID,
		goerrors.CategoryConflict,
		BrokerErrorProviderDuplicate,
	)
}

func errDeclaredDuplicate(providerID string) *goerrors.Error {
	return newBrokerError(
		"authentication provider already declared: "+providerID,
		goerrors.CategoryConflict,
		BrokerErrorDeclaredDuplicate,
	)
}

func errChallengesUnsupported(providerID string) *goerrors.Error {
	return newBrokerError(
		"authentication provider does not support challenges: "+providerID,
		goerrors.CategoryOperation,
		BrokerErrorChallengesUnsupported,
	)
}

func errServerUnsupported(providerID, server string) *goerrors.Error {
	return newBrokerError(
		"authentication provider "+providerID+" does not support authorization server: "+server,
		goerrors.CategoryOperation,
		BrokerErrorServerUnsupported,
	)
}

func errConsentDeclined(message string) *goerrors.Error {
	return newBrokerError(message, goerrors.CategoryAuth, BrokerErrorConsentDeclined)
}

func errActivationTimeout(providerID string) *goerrors.Error {
	return newBrokerError(
		"timed out waiting for authentication provider to activate: "+providerID,
		goerrors.CategoryOperation,
		BrokerErrorActivationTimeout,
	)
}

func newBrokerErrorRegistrationFailed(server string) *goerrors.Error {
	return newBrokerError(
		"unable to obtain a client registration for authorization server: "+server,
		goerrors.CategoryOperation,
		BrokerErrorRegistrationFailed,
	)
}

func errNoAccounts(providerID string) *goerrors.Error {
	return newBrokerError(
		"no accounts available for authentication provider: "+providerID,
		goerrors.CategoryNotFound,
		BrokerErrorNoAccounts,
	)
}

// HasTextCode reports whether err carries the given broker text code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsInvalidOptionCombination(err error) bool {
	return HasTextCode(err, BrokerErrorInvalidOptionCombination)
}

func IsNotRegistered(err error) bool {
	return HasTextCode(err, BrokerErrorProviderNotRegistered)
}

func IsDuplicateProvider(err error) bool {
	return HasTextCode(err, BrokerErrorProviderDuplicate)
}

func IsConsentDeclined(err error) bool {
	return HasTextCode(err, BrokerErrorConsentDeclined)
}

func IsActivationTimeout(err error) bool {
	return HasTextCode(err, BrokerErrorActivationTimeout)
}

func IsChallengesUnsupported(err error) bool {
	return HasTextCode(err, BrokerErrorChallengesUnsupported)
}

func IsServerUnsupported(err error) bool {
	return HasTextCode(err, BrokerErrorServerUnsupported)
}

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not registered"):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorProviderNotRegistered)
	case strings.Contains(msg, "already registered"), strings.Contains(msg, "already declared"):
		return newBrokerError(err.Error(), goerrors.CategoryConflict, BrokerErrorProviderDuplicate)
	case strings.Contains(msg, "did not consent"), strings.Contains(msg, "declined"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorConsentDeclined)
	case strings.Contains(msg, "timed out"):
		return newBrokerError(err.Error(), goerrors.CategoryOperation, BrokerErrorActivationTimeout)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = brokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadInput
	case goerrors.CategoryNotFound:
		return BrokerErrorProviderNotRegistered
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BrokerErrorConsentDeclined
	case goerrors.CategoryConflict:
		return BrokerErrorProviderDuplicate
	case goerrors.CategoryOperation:
		return BrokerErrorChallengesUnsupported
	default:
		return BrokerErrorInternal
	}
}

func brokerHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return brokerErrorMapper(err)
}
