package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
)

// SampleOrders are the dashboard's placeholder orders, used for local runs.
func SampleOrders(now time.Time) []*domain.Order {
	type row struct {
		id, customer, phone, address string
		status                       domain.OrderStatus
		items                        []domain.OrderItem
	}
	rows := []row{
		{"ORD-1001", "Nusrat Jahan", "+8801711000001", "House 12, Road 5, Dhanmondi, Dhaka", domain.OrderStatusConfirmed,
			[]domain.OrderItem{{SKU: "KUR-LIN-M", ProductName: "Linen Kurta", Size: "M", Quantity: 1, Price: 2450}}},
		{"ORD-1002", "Tanvir Ahmed", "+8801711000002", "Flat 3B, Gulshan 2, Dhaka", domain.OrderStatusProcessing,
			[]domain.OrderItem{{SKU: "DNM-JKT-L", ProductName: "Denim Jacket", Size: "L", Quantity: 1, Price: 3900}}},
		{"ORD-1003", "Farhana Akter", "+8801711000003", "Agrabad C/A, Chattogram", domain.OrderStatusPacked,
			[]domain.OrderItem{
				{SKU: "SAR-COT-F", ProductName: "Cotton Saree", Quantity: 1, Price: 3200},
				{SKU: "SCF-SLK-F", ProductName: "Silk Scarf", Quantity: 2, Price: 650},
			}},
		{"ORD-1004", "Rakib Hasan", "+8801711000004", "Zindabazar, Sylhet", domain.OrderStatusPending,
			[]domain.OrderItem{{SKU: "TEE-BSC-S", ProductName: "Basic Tee", Size: "S", Quantity: 3, Price: 550}}},
		{"ORD-1005", "Sadia Islam", "+8801711000005", "Uttara Sector 7, Dhaka", domain.OrderStatusShipped,
			[]domain.OrderItem{{SKU: "PNJ-EMB-M", ProductName: "Embroidered Panjabi", Size: "M", Quantity: 1, Price: 4100}}},
		{"ORD-1006", "Mahmud Karim", "+8801711000006", "Shaheb Bazar, Rajshahi", domain.OrderStatusDelivered,
			[]domain.OrderItem{{SKU: "CHN-SLM-32", ProductName: "Slim Chinos", Size: "32", Quantity: 2, Price: 1800}}},
		{"ORD-1007", "Ayesha Siddiqua", "+8801711000007", "Khalishpur, Khulna", domain.OrderStatusCancelled,
			[]domain.OrderItem{{SKU: "DRS-FLR-M", ProductName: "Floral Dress", Size: "M", Quantity: 1, Price: 2750}}},
		{"ORD-1008", "Imran Hossain", "+8801711000008", "Mirpur 10, Dhaka", domain.OrderStatusReturned,
			[]domain.OrderItem{{SKU: "HOD-FLC-XL", ProductName: "Fleece Hoodie", Size: "XL", Quantity: 1, Price: 2200}}},
		{"ORD-1009", "Lamia Chowdhury", "+8801711000009", "Banani Road 11, Dhaka", domain.OrderStatusConfirmed,
			[]domain.OrderItem{{SKU: "KUR-LIN-S", ProductName: "Linen Kurta", Size: "S", Quantity: 2, Price: 2450}}},
		{"ORD-1010", "Shakil Rahman", "+8801711000010", "Kazir Dewri, Chattogram", domain.OrderStatusProcessing,
			[]domain.OrderItem{{SKU: "POL-PIQ-L", ProductName: "Pique Polo", Size: "L", Quantity: 2, Price: 1250}}},
	}

	orders := make([]*domain.Order, 0, len(rows))
	for i, r := range rows {
		var total float64
		for _, it := range r.items {
			total += it.Price * float64(it.Quantity)
		}
		orders = append(orders, &domain.Order{
			ID:              r.id,
			CustomerName:    r.customer,
			CustomerPhone:   r.phone,
			ShippingAddress: r.address,
			TotalAmount:     total,
			Currency:        "BDT",
			Status:          r.status,
			Items:           r.items,
			CreatedAt:       now.Add(-time.Duration(len(rows)-i) * time.Hour),
		})
	}
	return orders
}

// Seed inserts orders, skipping ids that already exist. It returns the
// number of orders created.
func Seed(ctx context.Context, w OrderWriter, orders []*domain.Order) (int, error) {
	created := 0
	for _, o := range orders {
		err := w.CreateOrder(ctx, o)
		if errors.Is(err, ErrDuplicateOrder) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed order %s: %w", o.ID, err)
		}
		created++
	}
	return created, nil
}
