package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderCreated  OrderStatus = "CREATED"
	OrderPaid     OrderStatus = "PAID"
	OrderShipped  OrderStatus = "SHIPPED"
	OrderReceived OrderStatus = "RECEIVED"
	OrderClosed   OrderStatus = "CLOSED"
	// OrderRefunded is kept next to OrderClosed for refunds issued by the admin workbench.
	OrderRefunded OrderStatus = "REFUNDED"
)

type ReceiveMode string

const (
	ReceiveManual ReceiveMode = "manual"
	ReceiveAuto   ReceiveMode = "auto"
)

type Order struct {
	OrderID            string
	UserID             string
	Amount             decimal.Decimal
	PayAmount          decimal.Decimal
	Status             OrderStatus
	AddressHash        string
	ExpressCompanyCode string
	TrackingNo         string
	ReceiveMode        ReceiveMode
	CloseReason        string
	RefundReason       string
	CreatedAt          time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	ReceivedAt         *time.Time
	ClosedAt           *time.Time
	RefundedAt         *time.Time
}
