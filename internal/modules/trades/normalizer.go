package trades

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
)

var errMissing = errors.New("required field is missing")

// Normalize maps every raw entry of payload to a canonical trade record.
// Entries that cannot be mapped are reported individually and skipped; the
// rest are still returned.
func Normalize(payload *broker.TradePayload, account *domain.Account) ([]domain.TradeRecord, []error) {
	if payload == nil || len(payload.Entries) == 0 {
		return nil, nil
	}

	m, ok := MappingFor(account.Broker)
	if !ok {
		return nil, []error{&domain.NormalizationError{Field: "broker", Value: string(account.Broker), Err: errors.New("no mapping table")}}
	}

	summary, err := normalizeSummary(m, payload.Summary)
	if err != nil {
		// a broken summary block poisons every record of the batch
		return nil, []error{err}
	}

	records := make([]domain.TradeRecord, 0, len(payload.Entries))
	var failures []error
	for _, entry := range payload.Entries {
		rec, err := normalizeEntry(m, entry)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		rec.AccountID = account.ID
		rec.Summary = summary
		records = append(records, rec)
	}
	return records, failures
}

func normalizeEntry(m Mapping, f broker.Fields) (domain.TradeRecord, error) {
	v := valueReader{fields: f, specs: m.Fields}

	rec := domain.TradeRecord{
		OrderDate: broker.NormalizeDate(v.text(FieldOrderDate)),
		OrderNo:   v.text(FieldOrderNo),
		OrderTime: v.text(FieldOrderTime),
		StockCode: m.StockCode(v.text(FieldStockCode)),
		StockName: v.text(FieldStockName),
		Side:      m.Side(f),
	}
	if rec.OrderDate == "" {
		return rec, &domain.NormalizationError{Field: FieldOrderDate, Err: errMissing}
	}
	if rec.OrderNo == "" {
		return rec, &domain.NormalizationError{Field: FieldOrderNo, Err: errMissing}
	}

	rec.OrderPrice = v.float(FieldOrderPrice)
	rec.OrderQty = v.quantity(FieldOrderQty)
	rec.ExecutedPrice = v.float(FieldExecutedPrice)
	rec.ExecutedQty = v.quantity(FieldExecutedQty)
	rec.ExecutedAmount = v.float(FieldExecutedAmount)
	rec.RemainingQty = v.quantity(FieldRemainingQty)
	rec.CancelledQty = v.quantity(FieldCancelledQty)
	if v.err != nil {
		return rec, v.err
	}

	rec.Extra = make(map[string]string, len(m.Passthrough))
	for _, key := range m.Passthrough {
		if val := f.Get(key); val != "" {
			rec.Extra[key] = val
		}
	}
	return rec, nil
}

func normalizeSummary(m Mapping, f broker.Fields) (domain.TradeSummary, error) {
	v := valueReader{fields: f, specs: m.Summary}
	s := domain.TradeSummary{
		TotalOrderQty:       v.quantity(SummaryTotalOrderQty),
		TotalExecutedQty:    v.quantity(SummaryTotalExecutedQty),
		TotalExecutedAmount: v.float(SummaryTotalExecutedAmount),
		EstimatedCost:       v.float(SummaryEstimatedCost),
		AveragePrice:        v.float(SummaryAveragePrice),
	}
	return s, v.err
}

// valueReader resolves canonical fields through a spec table and keeps the
// first parse error it meets
type valueReader struct {
	fields broker.Fields
	specs  map[string]FieldSpec
	err    error
}

func (v *valueReader) text(field string) string {
	for _, key := range v.specs[field].Keys {
		if val := v.fields.Get(key); val != "" {
			return val
		}
	}
	return ""
}

func (v *valueReader) number(field string) decimal.Decimal {
	spec := v.specs[field]
	total := decimal.Zero
	for _, key := range spec.Keys {
		raw := v.fields.Get(key)
		if spec.Combine == CombineFirst && raw == "" {
			continue
		}
		d, err := broker.ParseDecimal(raw)
		if err != nil {
			if v.err == nil {
				v.err = &domain.NormalizationError{Field: field, Value: raw, Err: fmt.Errorf("source %s: %w", key, err)}
			}
			return decimal.Zero
		}
		if spec.Combine == CombineFirst {
			return d
		}
		total = total.Add(d)
	}
	return total
}

func (v *valueReader) float(field string) float64 {
	return v.number(field).InexactFloat64()
}

// quantity is unsigned; LS reports sells with a negative share count
func (v *valueReader) quantity(field string) int64 {
	return v.number(field).Abs().IntPart()
}
