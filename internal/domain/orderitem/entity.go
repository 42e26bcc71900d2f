package orderitem

// Item maps the columns of a production order line item that the attachment
// subsystem reads. The table itself is owned by the catalog/order CRUD side.
type Item struct {
	ID      int64 `gorm:"primaryKey"`
	OrderID int64 `gorm:"column:ordem_id;not null;index"`
}

func (Item) TableName() string {
	return "ordem_producao_uniformes_dados_modelo"
}
