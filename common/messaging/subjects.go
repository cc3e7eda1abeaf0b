package messaging

import "strings"

// SubjectLiveFeed is the default prefix for forwarded live feed envelopes.
// Forwarded messages land on {prefix}.{data_type}, e.g. alertstream.livefeed.edr.
const SubjectLiveFeed = "alertstream.livefeed"

// UnknownDataType is used in subjects when an envelope carries no declared type.
const UnknownDataType = "unknown"

// LiveFeedSubject returns the subject an envelope of the given data type is forwarded to.
func LiveFeedSubject(prefix, dataType string) string {
	if prefix == "" {
		prefix = SubjectLiveFeed
	}
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	if dataType == "" {
		dataType = UnknownDataType
	}
	return strings.TrimSuffix(prefix, ".") + "." + dataType
}
