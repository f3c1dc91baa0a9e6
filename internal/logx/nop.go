package logx

// nopLogger discards everything. Components fall back to it when built with
// a nil Logger, and tests use it when log output is not asserted.
type nopLogger struct{}

// Nop returns a Logger that discards all entries.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// With keeps discarding; attached fields go nowhere.
func (n nopLogger) With(...Field) Logger { return n }

func (nopLogger) Sync() error { return nil }

var _ Logger = nopLogger{}
