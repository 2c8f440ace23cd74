package transactions

import (
	"sort"

	"retail-analytics/models"
)

// Overview is the headline KPI set for a table
type Overview struct {
	TotalRevenue     float64 `json:"total_revenue"`
	TotalOrders      int     `json:"total_orders"`
	TotalCustomers   int     `json:"total_customers"`
	TotalProducts    int     `json:"total_products"`
	TotalCountries   int     `json:"total_countries"`
	AvgOrderValue    float64 `json:"avg_order_value"`
	ReturnLines      int     `json:"return_lines"`
	ReturnValue      float64 `json:"return_value"`
	AnonymousRevenue float64 `json:"anonymous_revenue"`

	TopProductsByRevenue  []ProductStat `json:"top_products_by_revenue"`
	TopProductsByQuantity []ProductStat `json:"top_products_by_quantity"`
	TopCountries          []CountryStat `json:"top_countries"`
	RevenueByWeekday      [7]float64    `json:"revenue_by_weekday"`
	RevenueByHour         [24]float64   `json:"revenue_by_hour"`
}

// ProductStat aggregates sales for one product description
type ProductStat struct {
	Description string  `json:"description"`
	Revenue     float64 `json:"revenue"`
	Quantity    int     `json:"quantity"`
}

// CountryStat aggregates sales for one country
type CountryStat struct {
	Country   string  `json:"country"`
	Revenue   float64 `json:"revenue"`
	Orders    int     `json:"orders"`
	Customers int     `json:"customers"`
}

const topN = 10

// Summarize computes the overview KPIs; returns are excluded from revenue figures
func Summarize(table *models.TransactionTable) Overview {
	var ov Overview
	if table.Len() == 0 {
		return ov
	}

	orders := make(map[string]bool)
	customers := make(map[string]bool)
	products := make(map[string]*ProductStat)
	countries := make(map[string]*CountryStat)
	countryOrders := make(map[string]map[string]bool)
	countryCustomers := make(map[string]map[string]bool)

	for _, r := range table.Records {
		if r.IsReturn() {
			ov.ReturnLines++
			ov.ReturnValue += -r.TotalAmount
			continue
		}

		ov.TotalRevenue += r.TotalAmount
		orders[r.InvoiceNo] = true
		if r.HasCustomer() {
			customers[r.CustomerID] = true
		} else {
			ov.AnonymousRevenue += r.TotalAmount
		}

		ov.RevenueByWeekday[r.DayOfWeek] += r.TotalAmount
		ov.RevenueByHour[r.Hour] += r.TotalAmount

		if r.Description != "" {
			p, ok := products[r.Description]
			if !ok {
				p = &ProductStat{Description: r.Description}
				products[r.Description] = p
			}
			p.Revenue += r.TotalAmount
			p.Quantity += r.Quantity
		}

		c, ok := countries[r.Country]
		if !ok {
			c = &CountryStat{Country: r.Country}
			countries[r.Country] = c
			countryOrders[r.Country] = make(map[string]bool)
			countryCustomers[r.Country] = make(map[string]bool)
		}
		c.Revenue += r.TotalAmount
		countryOrders[r.Country][r.InvoiceNo] = true
		if r.HasCustomer() {
			countryCustomers[r.Country][r.CustomerID] = true
		}
	}

	ov.TotalOrders = len(orders)
	ov.TotalCustomers = len(customers)
	ov.TotalProducts = len(products)
	ov.TotalCountries = len(countries)
	if ov.TotalOrders > 0 {
		ov.AvgOrderValue = ov.TotalRevenue / float64(ov.TotalOrders)
	}

	productList := make([]ProductStat, 0, len(products))
	for _, p := range products {
		productList = append(productList, *p)
	}

	byRevenue := append([]ProductStat(nil), productList...)
	sort.Slice(byRevenue, func(i, j int) bool {
		if byRevenue[i].Revenue != byRevenue[j].Revenue {
			return byRevenue[i].Revenue > byRevenue[j].Revenue
		}
		return byRevenue[i].Description < byRevenue[j].Description
	})
	ov.TopProductsByRevenue = truncate(byRevenue, topN)

	byQuantity := append([]ProductStat(nil), productList...)
	sort.Slice(byQuantity, func(i, j int) bool {
		if byQuantity[i].Quantity != byQuantity[j].Quantity {
			return byQuantity[i].Quantity > byQuantity[j].Quantity
		}
		return byQuantity[i].Description < byQuantity[j].Description
	})
	ov.TopProductsByQuantity = truncate(byQuantity, topN)

	countryList := make([]CountryStat, 0, len(countries))
	for name, c := range countries {
		c.Orders = len(countryOrders[name])
		c.Customers = len(countryCustomers[name])
		countryList = append(countryList, *c)
	}
	sort.Slice(countryList, func(i, j int) bool {
		if countryList[i].Revenue != countryList[j].Revenue {
			return countryList[i].Revenue > countryList[j].Revenue
		}
		return countryList[i].Country < countryList[j].Country
	})
	ov.TopCountries = truncate(countryList, topN)

	return ov
}

func truncate[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
