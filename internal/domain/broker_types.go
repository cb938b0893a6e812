package domain

import (
	"fmt"
	"strings"
)

// Broker identifies an external trading-API provider
type Broker string

const (
	// BrokerKIS is Korea Investment & Securities
	BrokerKIS Broker = "KIS"
	// BrokerLS is LS Securities
	BrokerLS Broker = "LS"
)

// ParseBroker normalizes a broker identifier
func ParseBroker(s string) (Broker, error) {
	switch Broker(strings.ToUpper(strings.TrimSpace(s))) {
	case BrokerKIS:
		return BrokerKIS, nil
	case BrokerLS:
		return BrokerLS, nil
	}
	return "", fmt.Errorf("unknown broker %q", s)
}

// Mode selects the sandbox or production environment of a broker.
// Base URLs and transaction ids differ per mode and must never be mixed.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ParseMode normalizes an account mode. "virtual" is accepted as an alias
// for paper since older account records were stored that way.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paper", "virtual":
		return ModePaper, nil
	case "live", "real":
		return ModeLive, nil
	}
	return "", fmt.Errorf("unknown account mode %q", s)
}

// OrderSide is the canonical buy/sell marker on a trade record
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// SnapshotKind tells which collection path produced a balance snapshot
type SnapshotKind string

const (
	SnapshotPeriodic SnapshotKind = "periodic"
	SnapshotIntraday SnapshotKind = "intraday"
	SnapshotManual   SnapshotKind = "manual"
)

// ParseSnapshotKind validates a snapshot kind filter
func ParseSnapshotKind(s string) (SnapshotKind, error) {
	switch SnapshotKind(strings.ToLower(strings.TrimSpace(s))) {
	case SnapshotPeriodic:
		return SnapshotPeriodic, nil
	case SnapshotIntraday:
		return SnapshotIntraday, nil
	case SnapshotManual:
		return SnapshotManual, nil
	}
	return "", fmt.Errorf("unknown snapshot kind %q", s)
}
