package hedgelog

import "gorm.io/datatypes"

// AlertModel is the persisted form of one hedge alert state. Every
// state of an attempt is written (PENDING, then the terminal state),
// upserted by alert ID so the row reflects the latest.
type AlertModel struct {
	ID            int64          `gorm:"column:id;primaryKey" json:"-"`
	AlertID       string         `gorm:"column:alert_id;uniqueIndex" json:"id"`
	PositionKey   string         `gorm:"column:position_key;index" json:"key"`
	Instrument    string         `gorm:"column:instrument" json:"instrument"`
	Action        string         `gorm:"column:action" json:"action"`
	Quantity      int64          `gorm:"column:quantity" json:"quantity"`
	OrderType     string         `gorm:"column:order_type" json:"order_type"`
	Status        string         `gorm:"column:status;index" json:"status"`
	FillPrice     float64        `gorm:"column:fill_price" json:"fill_price"`
	Detail        datatypes.JSON `gorm:"column:detail" json:"detail"`
	TimestampUnix int64          `gorm:"column:ts;index" json:"ts"`
	CreatedAtUnix int64          `gorm:"column:created_at" json:"-"`
	UpdatedAtUnix int64          `gorm:"column:updated_at" json:"-"`
}

func (AlertModel) TableName() string { return "hedge_alerts" }
