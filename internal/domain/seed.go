package domain

// DemoProducts is the starter catalog inserted by the seed operation.
func DemoProducts() []Product {
	return []Product{
		{Name: "Espresso", Description: "Strong coffee brewed by forcing hot water through finely-ground coffee beans", Price: 3.50, Category: "Beverages", Stock: 100, Barcode: "1234567890"},
		{Name: "Cappuccino", Description: "Espresso with steamed milk and foam", Price: 4.50, Category: "Beverages", Stock: 100, Barcode: "2345678901"},
		{Name: "Croissant", Description: "Buttery, flaky pastry", Price: 3.75, Category: "Pastries", Stock: 20, Barcode: "3456789012"},
		{Name: "Chocolate Muffin", Description: "Rich chocolate muffin with chocolate chips", Price: 3.25, Category: "Pastries", Stock: 15, Barcode: "4567890123"},
		{Name: "Green Tea", Description: "Japanese green tea", Price: 3.00, Category: "Beverages", Stock: 30, Barcode: "5678901234"},
	}
}
