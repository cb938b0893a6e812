// Package trades normalizes broker trade-history payloads into canonical
// trade records and persists them idempotently.
package trades

import (
	"strings"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
)

// Canonical trade fields
const (
	FieldOrderDate      = "order_date"
	FieldOrderNo        = "order_no"
	FieldOrderTime      = "order_time"
	FieldStockCode      = "stock_code"
	FieldStockName      = "stock_name"
	FieldOrderPrice     = "order_price"
	FieldOrderQty       = "order_qty"
	FieldExecutedPrice  = "executed_price"
	FieldExecutedQty    = "executed_qty"
	FieldExecutedAmount = "executed_amount"
	FieldRemainingQty   = "remaining_qty"
	FieldCancelledQty   = "cancelled_qty"
)

// Canonical summary fields
const (
	SummaryTotalOrderQty       = "total_order_qty"
	SummaryTotalExecutedQty    = "total_executed_qty"
	SummaryTotalExecutedAmount = "total_executed_amount"
	SummaryEstimatedCost       = "estimated_cost"
	SummaryAveragePrice        = "average_price"
)

// Combine says how several source keys collapse into one canonical value
type Combine int

const (
	// CombineFirst takes the first non-blank source value
	CombineFirst Combine = iota
	// CombineSum adds every source value as a number
	CombineSum
)

// FieldSpec lists the broker keys feeding one canonical field
type FieldSpec struct {
	Keys    []string
	Combine Combine
}

func first(keys ...string) FieldSpec { return FieldSpec{Keys: keys, Combine: CombineFirst} }
func sum(keys ...string) FieldSpec   { return FieldSpec{Keys: keys, Combine: CombineSum} }

// Mapping is the fixed dictionary translating one broker's trade payload
type Mapping struct {
	Fields      map[string]FieldSpec
	Summary     map[string]FieldSpec
	Passthrough []string

	// Side derives buy/sell from the raw entry
	Side func(broker.Fields) domain.OrderSide
	// StockCode cleans the raw issue code
	StockCode func(string) string
}

// kisSide reads sll_buy_dvsn_cd: "01" sell, "02" buy
func kisSide(f broker.Fields) domain.OrderSide {
	if f.Get("sll_buy_dvsn_cd") == "01" {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

// lsSide prefers the Korean trade-type label and falls back to the quantity sign
func lsSide(f broker.Fields) domain.OrderSide {
	for _, key := range []string{"TpCodeNm", "SmryNm"} {
		label := f.Get(key)
		switch {
		case strings.Contains(label, "매도"):
			return domain.OrderSideSell
		case strings.Contains(label, "매수"):
			return domain.OrderSideBuy
		}
	}
	if strings.HasPrefix(f.Get("TrdQty"), "-") {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

// lsStockCode drops the "A" prefix LS puts on KRX issue numbers
func lsStockCode(code string) string {
	if len(code) == 7 && code[0] == 'A' {
		return code[1:]
	}
	return code
}

var mappings = map[domain.Broker]Mapping{
	domain.BrokerKIS: {
		Fields: map[string]FieldSpec{
			FieldOrderDate:      first("ord_dt"),
			FieldOrderNo:        first("odno"),
			FieldOrderTime:      first("ord_tmd"),
			FieldStockCode:      first("pdno"),
			FieldStockName:      first("prdt_name"),
			FieldOrderPrice:     first("ord_unpr"),
			FieldOrderQty:       first("ord_qty"),
			FieldExecutedPrice:  first("avg_prvs"),
			FieldExecutedQty:    first("tot_ccld_qty"),
			FieldExecutedAmount: first("tot_ccld_amt"),
			FieldRemainingQty:   first("rmn_qty"),
			FieldCancelledQty:   first("cncl_cfrm_qty"),
		},
		Summary: map[string]FieldSpec{
			SummaryTotalOrderQty:       first("tot_ord_qty"),
			SummaryTotalExecutedQty:    first("tot_ccld_qty"),
			SummaryTotalExecutedAmount: first("tot_ccld_amt"),
			SummaryEstimatedCost:       first("prsm_tlex_smtl"),
			SummaryAveragePrice:        first("pchs_avg_pric"),
		},
		Passthrough: []string{
			"orgn_odno", "ord_dvsn_name", "sll_buy_dvsn_cd", "sll_buy_dvsn_cd_name", "cncl_yn",
			"loan_dt", "ord_gno_brno", "ord_dvsn_cd", "rjct_qty", "ccld_cndt_name", "inqr_ip_addr",
			"cpbc_ordp_ord_rcit_dvsn_cd", "cpbc_ordp_infm_mthd_dvsn_cd", "infm_tmd", "ctac_tlno",
			"prdt_type_cd", "excg_dvsn_cd", "cpbc_ordp_mtrl_dvsn_cd", "ord_orgno", "rsvn_ord_end_dt",
			"excg_id_dvsn_cd", "stpm_cndt_pric", "stpm_efct_occr_dtmd",
		},
		Side:      kisSide,
		StockCode: strings.TrimSpace,
	},
	domain.BrokerLS: {
		Fields: map[string]FieldSpec{
			FieldOrderDate:      first("TrdDt", "OrdDt"),
			FieldOrderNo:        first("TrdNo", "OrdNo"),
			FieldOrderTime:      first("TrxTime", "OrdTime"),
			FieldStockCode:      first("IsuNo", "ShtnIsuNo"),
			FieldStockName:      first("IsuNm"),
			FieldOrderPrice:     first("OrdPrc", "TrdUprc"),
			FieldOrderQty:       first("OrdQty", "TrdQty"),
			FieldExecutedPrice:  first("TrdUprc"),
			FieldExecutedQty:    first("TrdQty"),
			FieldExecutedAmount: first("TrdAmt"),
			FieldRemainingQty:   first("UnercQty"),
			FieldCancelledQty:   first("CancQty"),
		},
		Summary: map[string]FieldSpec{
			SummaryTotalOrderQty:       sum("BuyQty", "SellQty"),
			SummaryTotalExecutedQty:    sum("BuyQty", "SellQty"),
			SummaryTotalExecutedAmount: sum("BuyAmt", "SellAmt"),
			SummaryEstimatedCost:       sum("CmsnAmt", "EvrTax", "TrtaxAmt"),
			SummaryAveragePrice:        first("AvgUprc"),
		},
		Passthrough: []string{
			"OrgTrdNo", "TpCodeNm", "SmryNo", "SmryNm", "CancTpNm", "TrdmdaNm", "CmsnAmt",
			"EvrTax", "TrtaxAmt", "AdjstAmt", "BalUnit", "BnsBaseAmt", "PnlAmt", "Inouno",
		},
		Side:      lsSide,
		StockCode: lsStockCode,
	},
}

// MappingFor returns the mapping table for b
func MappingFor(b domain.Broker) (Mapping, bool) {
	m, ok := mappings[b]
	return m, ok
}
