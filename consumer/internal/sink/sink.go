// Package sink persists normalized alert records.
package sink

import (
	"context"
	"errors"

	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
)

var ErrUnknownRecord = errors.New("unknown type-specific record")

// AnalyticalSink stores the two halves of a normalized alert. Both writes must
// be idempotent for the same record ID. Callers do not wrap them in a
// transaction.
type AnalyticalSink interface {
	StoreCommon(ctx context.Context, rec *normalizer.CommonAlertRecord) error
	StoreTypeSpecific(ctx context.Context, rec normalizer.TypeSpecificRecord) error
}
