package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Ensure returns a nop logger when the input is nil so call sites never
// branch on logger presence.
func Ensure(logger glog.Logger) glog.Logger {
	return glog.Ensure(logger)
}

// ProviderFromLogger wraps a single logger as a provider for components that
// resolve named loggers.
func ProviderFromLogger(logger glog.Logger) glog.LoggerProvider {
	if logger == nil {
		return nil
	}
	return glog.ProviderFromLogger(logger)
}
