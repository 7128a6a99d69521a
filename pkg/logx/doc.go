// Package logx is cronwait's logging layer, a thin wrapper over zerolog.
//
// Loggers are values built from typed Fields. The console sink prints
// short timestamps and file:line callers; the file sink writes JSON.
// A Service owns the sinks and can swap them at runtime when the
// logging section of the config is reloaded.
package logx
