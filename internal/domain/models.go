// internal/domain/models.go
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StockSnapshot is one observed stock state for a product, as delivered by an
// import batch. It is never persisted as-is; the recorder folds it into the
// daily metric row.
type StockSnapshot struct {
	ReferenceProductID string
	Quantity           float64
	SellPrice          *float64
}

// DailyStockMetric is the per (day, product) fold of all snapshots observed
// that day. Opening/closing follow snapshot timestamps, not arrival order.
type DailyStockMetric struct {
	Day                      time.Time  `json:"day" db:"day"`
	ReferenceProductID       string     `json:"reference_product_id" db:"reference_product_id"`
	OpeningTotalQty          float64    `json:"opening_total_qty" db:"opening_total_qty"`
	ClosingTotalQty          float64    `json:"closing_total_qty" db:"closing_total_qty"`
	OpeningAvailableQty      float64    `json:"opening_available_qty" db:"opening_available_qty"`
	ClosingAvailableQty      float64    `json:"closing_available_qty" db:"closing_available_qty"`
	OpeningSellPrice         *float64   `json:"opening_sell_price" db:"opening_sell_price"`
	ClosingSellPrice         *float64   `json:"closing_sell_price" db:"closing_sell_price"`
	DailyTotalVariation      float64    `json:"daily_total_variation" db:"daily_total_variation"`
	DailyAvailableVariation  float64    `json:"daily_available_variation" db:"daily_available_variation"`
	ClosingSalesValue        float64    `json:"closing_sales_value" db:"closing_sales_value"`
	DailySalesValueVariation float64    `json:"daily_sales_value_variation" db:"daily_sales_value_variation"`
	MinAvailableQty          float64    `json:"min_available_qty" db:"min_available_qty"`
	MaxAvailableQty          float64    `json:"max_available_qty" db:"max_available_qty"`
	SnapshotsCount           int        `json:"snapshots_count" db:"snapshots_count"`
	FirstSnapshotAt          time.Time  `json:"first_snapshot_at" db:"first_snapshot_at"`
	LastSnapshotAt           time.Time  `json:"last_snapshot_at" db:"last_snapshot_at"`
}

// DailyKpi is the one-row-per-day rollup across all products.
type DailyKpi struct {
	Day                          time.Time `json:"day" db:"day"`
	ProductsTotal                int       `json:"products_total" db:"products_total"`
	ProductsInStock              int       `json:"products_in_stock" db:"products_in_stock"`
	ProductsOutOfStock           int       `json:"products_out_of_stock" db:"products_out_of_stock"`
	InventoryQtyClosingTotal     float64   `json:"inventory_qty_closing_total" db:"inventory_qty_closing_total"`
	InventoryValueOpeningTotal   float64   `json:"inventory_value_opening_total" db:"inventory_value_opening_total"`
	InventoryValueClosingTotal   float64   `json:"inventory_value_closing_total" db:"inventory_value_closing_total"`
	InventoryValueVariationTotal float64   `json:"inventory_value_variation_total" db:"inventory_value_variation_total"`
	SnapshotsTotal               int       `json:"snapshots_total" db:"snapshots_total"`
	ImportsSpanMinutes           *int      `json:"imports_span_minutes" db:"imports_span_minutes"`
}

// ProductVelocity is the rolling consumption rate per product. One row per
// product, replaced wholesale on every run; no history is kept.
type ProductVelocity struct {
	ReferenceProductID    string     `json:"reference_product_id" db:"reference_product_id"`
	CalculatedForDay      time.Time  `json:"calculated_for_day" db:"calculated_for_day"`
	OutQty7d              float64    `json:"out_qty_7d" db:"out_qty_7d"`
	OutQty30d             float64    `json:"out_qty_30d" db:"out_qty_30d"`
	OutQty90d             float64    `json:"out_qty_90d" db:"out_qty_90d"`
	AvgOutQty7d           float64    `json:"avg_out_qty_7d" db:"avg_out_qty_7d"`
	AvgOutQty30d          float64    `json:"avg_out_qty_30d" db:"avg_out_qty_30d"`
	AvgOutQty90d          float64    `json:"avg_out_qty_90d" db:"avg_out_qty_90d"`
	LastMovementDay       *time.Time `json:"last_movement_day" db:"last_movement_day"`
	DaysSinceLastMovement *int       `json:"days_since_last_movement" db:"days_since_last_movement"`
}

// RiskLevel is the three-tier alert severity.
type RiskLevel string

const (
	RiskP0 RiskLevel = "P0" // out of stock, near-term depletion or price anomaly
	RiskP1 RiskLevel = "P1" // depletion within the longer horizon
	RiskP2 RiskLevel = "P2" // capital tied up in non-moving stock
)

// Reason flag tags. Non-exclusive; a candidate carries every tag that applies.
const (
	FlagOutOfStock      = "out_of_stock"
	FlagCriticalStock   = "critical_stock"
	FlagLowStock        = "low_stock"
	FlagPriceSpike      = "price_spike"
	FlagNoConsumption30 = "no_consumption_30d"
	FlagDeadStock       = "dead_stock"
)

// ReasonFlags is stored as a JSON array of strings, matching the existing
// alert table encoding.
type ReasonFlags []string

func (f ReasonFlags) Value() (driver.Value, error) {
	if f == nil {
		f = ReasonFlags{}
	}
	return json.Marshal(f)
}

func (f *ReasonFlags) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan reason_flags from %T", src)
	}
}

// Has reports whether the tag is present.
func (f ReasonFlags) Has(tag string) bool {
	for _, t := range f {
		if t == tag {
			return true
		}
	}
	return false
}

// AlertCandidate is one at-risk product for a day. Rows for a day are fully
// deleted and re-inserted on every classification run.
type AlertCandidate struct {
	Day                time.Time   `json:"day" db:"day"`
	ReferenceProductID string      `json:"reference_product_id" db:"reference_product_id"`
	ProductName        string      `json:"product_name" db:"product_name"`
	ClosingQty         float64     `json:"closing_qty" db:"closing_qty"`
	ClosingPrice       *float64    `json:"closing_price" db:"closing_price"`
	StockValue         float64     `json:"stock_value" db:"stock_value"`
	AvgOut30d          float64     `json:"avg_out_30d" db:"avg_out_30d"`
	DaysLeftEstimate   *float64    `json:"days_left_estimate" db:"days_left_estimate"`
	RiskLevel          RiskLevel   `json:"risk_level" db:"risk_level"`
	ReasonFlags        ReasonFlags `json:"reason_flags" db:"reason_flags"`
}

// Product is the minimal catalog entry the BI layer needs: the stable SKU and
// a display name the alert rows denormalize. The full catalog lives elsewhere.
type Product struct {
	ReferenceProductID string    `json:"reference_product_id" db:"reference_product_id"`
	Name               string    `json:"name" db:"name"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
