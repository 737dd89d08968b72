package logfields

import "log/slog"

// Canonical log field names shared by every pipeline stage.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPage       = "page"
	KeyBuildKey   = "build_key"
	KeyPartial    = "partial"
	KeyPath       = "path"
	KeyAsset      = "asset"
	KeyURL        = "url"
	KeyCount      = "count"
	KeyBytes      = "bytes"
	KeyOutcome    = "outcome"
	KeyError      = "error"
)

func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Page(p string) slog.Attr         { return slog.String(KeyPage, p) }
func BuildKey(k string) slog.Attr     { return slog.String(KeyBuildKey, k) }
func Partial(name string) slog.Attr   { return slog.String(KeyPartial, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Asset(a string) slog.Attr        { return slog.String(KeyAsset, a) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }

// Error renders err as a string attribute; nil yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
