package orders

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) createOrder(tx *gorm.DB, order *Order) error {
	return tx.Create(order).Error
}

func (d *Database) GetOrder(orderID uint64) (*Order, error) {
	var order Order
	if err := d.db.Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) saveOrder(tx *gorm.DB, order *Order) error {
	return tx.Save(order).Error
}

// GetOrdersBySeller returns a seller's orders, newest first.
func (d *Database) GetOrdersBySeller(seller string) ([]Order, error) {
	var sellerOrders []Order
	if err := d.db.Where("seller = ?", seller).Order("id DESC").Find(&sellerOrders).Error; err != nil {
		return nil, err
	}
	return sellerOrders, nil
}
