package logging

import "log/slog"

// Common field names so every component logs the same keys.
const (
	FieldService    = "service"
	FieldRequestID  = "request_id"
	FieldSourceID   = "source_id"
	FieldSourceName = "source_name"
	FieldTopic      = "topic"
	FieldPartition  = "partition"
	FieldOffset     = "offset"
	FieldDataType   = "data_type"
	FieldRecordID   = "record_id"
	FieldAlertKey   = "alert_key"
	FieldIndex      = "index"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

func SourceID(id string) slog.Attr {
	return slog.String(FieldSourceID, id)
}

func SourceName(name string) slog.Attr {
	return slog.String(FieldSourceName, name)
}

func Topic(topic string) slog.Attr {
	return slog.String(FieldTopic, topic)
}

func Partition(p int) slog.Attr {
	return slog.Int(FieldPartition, p)
}

func Offset(o int64) slog.Attr {
	return slog.Int64(FieldOffset, o)
}

func DataType(t string) slog.Attr {
	return slog.String(FieldDataType, t)
}

func RecordID(id string) slog.Attr {
	return slog.String(FieldRecordID, id)
}

func AlertKey(key string) slog.Attr {
	return slog.String(FieldAlertKey, key)
}

func Index(name string) slog.Attr {
	return slog.String(FieldIndex, name)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for err. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}
